package db

import "testing"

func TestNormalizeSeriesName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"goblin slayer", "Goblin Slayer"},
		{"Goblin Slayer", "Goblin Slayer"},
		{" Goblin   Slayer ", "Goblin Slayer"},
		{"GOBLIN SLAYER", "Goblin Slayer"},
		{"one\tpunch  man", "One Punch Man"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeSeriesName(tc.in); got != tc.want {
			t.Errorf("NormalizeSeriesName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSeriesNameIdempotent(t *testing.T) {
	for _, in := range []string{"goblin slayer", " A  B ", "ALREADY Normal"} {
		once := NormalizeSeriesName(in)
		twice := NormalizeSeriesName(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
