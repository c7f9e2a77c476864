package tracker

import (
	"context"
	"testing"
	"time"
)

func newResolver(store *fakeStore, gw *fakeGateway, p *scriptPrompter) *Resolver {
	return &Resolver{
		Store:          store,
		Gateway:        gw,
		Prompter:       p,
		FuzzyThreshold: 70,
		PromptTimeout:  time.Millisecond,
	}
}

var testReq = Request{Channel: "#scans", Handle: "steve"}

func TestResolveSeriesKnownAliasNoInteraction(t *testing.T) {
	store := newFakeStore()
	_ = store.UpsertSeries(context.Background(), "Goblin Slayer", "GS")
	p := &scriptPrompter{}
	r := newResolver(store, &fakeGateway{titles: []string{"GS"}}, p)

	title, ok := r.ResolveSeries(context.Background(), testReq, "goblin slayer")
	if !ok || title != "GS" {
		t.Fatalf("ResolveSeries = %q, %v", title, ok)
	}
	if len(p.says) != 0 {
		t.Errorf("expected no interaction for known alias, said %v", p.says)
	}
}

func TestResolveSeriesSuggestionConfirmed(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer", "Vinland Saga"}}
	p := &scriptPrompter{replies: []string{"yes"}}
	r := newResolver(store, gw, p)

	title, ok := r.ResolveSeries(context.Background(), testReq, "Goblin Slayer")
	if !ok || title != "Goblin Slayer" {
		t.Fatalf("ResolveSeries = %q, %v", title, ok)
	}
	if !p.saidContaining("Did you mean 'Goblin Slayer'?") {
		t.Errorf("expected suggestion prompt, said %v", p.says)
	}
	if !p.saidContaining("Saved alias") {
		t.Errorf("expected save confirmation, said %v", p.says)
	}
	if got, found, _ := store.GetSeries(context.Background(), "Goblin Slayer"); !found || got != "Goblin Slayer" {
		t.Errorf("alias not persisted: %q found=%v", got, found)
	}
}

func TestResolveSeriesSuggestionDeclinedThenTyped(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer", "GS Side Story"}}
	p := &scriptPrompter{replies: []string{"no", "GS Side Story"}}
	r := newResolver(store, gw, p)

	title, ok := r.ResolveSeries(context.Background(), testReq, "goblin slayer")
	if !ok || title != "GS Side Story" {
		t.Fatalf("ResolveSeries = %q, %v", title, ok)
	}
	if got, found, _ := store.GetSeries(context.Background(), "goblin slayer"); !found || got != "GS Side Story" {
		t.Errorf("alias not persisted: %q found=%v", got, found)
	}
}

// A reply that is neither yes nor no during the suggestion wait is taken as a
// directly typed title.
func TestResolveSeriesSuggestionBypassedWithTypedTitle(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer", "Vinland Saga"}}
	p := &scriptPrompter{replies: []string{"Vinland Saga"}}
	r := newResolver(store, gw, p)

	title, ok := r.ResolveSeries(context.Background(), testReq, "goblin slayer")
	if !ok || title != "Vinland Saga" {
		t.Fatalf("ResolveSeries = %q, %v", title, ok)
	}
}

func TestResolveSeriesNoSuggestionPromptsForTitle(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer"}}
	p := &scriptPrompter{replies: []string{"Goblin Slayer"}}
	r := newResolver(store, gw, p)

	// Nothing close to "zzzzzz": the flow skips the suggestion and asks for
	// the title outright.
	title, ok := r.ResolveSeries(context.Background(), testReq, "zzzzzz")
	if !ok || title != "Goblin Slayer" {
		t.Fatalf("ResolveSeries = %q, %v", title, ok)
	}
	if !p.saidContaining("Please reply with the worksheet title") {
		t.Errorf("expected direct title prompt, said %v", p.says)
	}
}

func TestResolveSeriesTimeoutLeavesStoreUntouched(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer"}}
	p := &scriptPrompter{replies: []string{timeoutReply}}
	r := newResolver(store, gw, p)

	if _, ok := r.ResolveSeries(context.Background(), testReq, "goblin slayer"); ok {
		t.Fatal("expected resolution failure on timeout")
	}
	if !p.saidContaining("Timed out") {
		t.Errorf("expected timeout message, said %v", p.says)
	}
	if len(store.series) != 0 {
		t.Errorf("timeout must not persist aliases: %v", store.series)
	}
}

func TestResolveSeriesUnknownTypedTitleAborts(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer"}}
	p := &scriptPrompter{replies: []string{"Goblin Slayr"}}
	r := newResolver(store, gw, p)

	if _, ok := r.ResolveSeries(context.Background(), testReq, "zzzzzz"); ok {
		t.Fatal("expected resolution failure for unknown title")
	}
	if !p.saidContaining("couldn't find a worksheet with that title") {
		t.Errorf("expected rejection message, said %v", p.says)
	}
	if len(store.series) != 0 {
		t.Errorf("rejected title must not persist aliases: %v", store.series)
	}
}

func TestResolveSeriesEmptyTitleAborts(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{titles: []string{"Goblin Slayer"}}
	p := &scriptPrompter{replies: []string{"   "}}
	r := newResolver(store, gw, p)

	if _, ok := r.ResolveSeries(context.Background(), testReq, "zzzzzz"); ok {
		t.Fatal("expected resolution failure for empty title")
	}
	if !p.saidContaining("Empty title provided") {
		t.Errorf("expected empty-title message, said %v", p.says)
	}
}

func TestResolveUserKnownNoInteraction(t *testing.T) {
	store := newFakeStore()
	_ = store.UpsertUser(context.Background(), "steve", "SteveScans")
	p := &scriptPrompter{}
	r := newResolver(store, &fakeGateway{}, p)

	name, ok := r.ResolveUser(context.Background(), testReq, "steve")
	if !ok || name != "SteveScans" {
		t.Fatalf("ResolveUser = %q, %v", name, ok)
	}
	if len(p.says) != 0 {
		t.Errorf("expected no interaction, said %v", p.says)
	}
}

func TestResolveUserPromptAndPersist(t *testing.T) {
	store := newFakeStore()
	p := &scriptPrompter{replies: []string{"SteveScans"}}
	r := newResolver(store, &fakeGateway{}, p)

	name, ok := r.ResolveUser(context.Background(), testReq, "steve")
	if !ok || name != "SteveScans" {
		t.Fatalf("ResolveUser = %q, %v", name, ok)
	}
	if got := store.users["steve"]; got != "SteveScans" {
		t.Errorf("alias not persisted: %q", got)
	}

	// Second resolution is served from the store.
	p.replies = nil
	sayCount := len(p.says)
	if name, ok = r.ResolveUser(context.Background(), testReq, "steve"); !ok || name != "SteveScans" {
		t.Fatalf("second ResolveUser = %q, %v", name, ok)
	}
	if len(p.says) != sayCount {
		t.Errorf("second resolution must not prompt, said %v", p.says[sayCount:])
	}
}

func TestResolveUserEmptyAndTimeoutAbort(t *testing.T) {
	for name, reply := range map[string]string{"empty": "  ", "timeout": timeoutReply} {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			p := &scriptPrompter{replies: []string{reply}}
			r := newResolver(store, &fakeGateway{}, p)

			if _, ok := r.ResolveUser(context.Background(), testReq, "steve"); ok {
				t.Fatal("expected abort")
			}
			if len(store.users) != 0 {
				t.Errorf("abort must not persist aliases: %v", store.users)
			}
		})
	}
}
