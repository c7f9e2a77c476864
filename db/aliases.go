package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// NormalizeSeriesName trims, collapses whitespace runs, and title-cases a
// series name so that "goblin slayer", "Goblin Slayer" and " Goblin   Slayer "
// all key the same alias row. Idempotent.
func NormalizeSeriesName(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	return titleCaser.String(strings.ToLower(collapsed))
}

// AliasStore persists the two alias tables: user handle -> display name and
// normalized series name -> worksheet title. Normalization happens here, at
// the boundary, so callers never see or store un-normalized keys.
type AliasStore struct {
	db *sql.DB
}

func NewAliasStore(db *sql.DB) *AliasStore { return &AliasStore{db: db} }

// UpsertUser stores or replaces the display name for a chat handle.
func (s *AliasStore) UpsertUser(ctx context.Context, handle, displayName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_aliases (handle, display_name, updated_at) VALUES ($1,$2,NOW())
		 ON CONFLICT(handle) DO UPDATE SET display_name=EXCLUDED.display_name, updated_at=NOW()`,
		handle, displayName)
	if err != nil {
		return fmt.Errorf("upsert user alias %q: %w", handle, err)
	}
	return nil
}

// GetUser returns the display name for a handle, or found=false when absent.
func (s *AliasStore) GetUser(ctx context.Context, handle string) (displayName string, found bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT display_name FROM user_aliases WHERE handle=$1`, handle).Scan(&displayName)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get user alias %q: %w", handle, err)
	}
	return displayName, true, nil
}

// UpsertSeries stores or replaces the worksheet title for a series name.
// The name is normalized before storage.
func (s *AliasStore) UpsertSeries(ctx context.Context, name, sheetTitle string) error {
	normalized := NormalizeSeriesName(name)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO series_aliases (name, sheet_title, updated_at) VALUES ($1,$2,NOW())
		 ON CONFLICT(name) DO UPDATE SET sheet_title=EXCLUDED.sheet_title, updated_at=NOW()`,
		normalized, sheetTitle)
	if err != nil {
		return fmt.Errorf("upsert series alias %q: %w", normalized, err)
	}
	return nil
}

// GetSeries returns the worksheet title for a series name, or found=false when
// absent. The name is normalized before lookup.
func (s *AliasStore) GetSeries(ctx context.Context, name string) (sheetTitle string, found bool, err error) {
	normalized := NormalizeSeriesName(name)
	err = s.db.QueryRowContext(ctx,
		`SELECT sheet_title FROM series_aliases WHERE name=$1`, normalized).Scan(&sheetTitle)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get series alias %q: %w", normalized, err)
	}
	return sheetTitle, true, nil
}

// CountAliases reports how many user and series aliases are stored. Used by
// the status endpoint.
func (s *AliasStore) CountAliases(ctx context.Context) (users, series int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_aliases`).Scan(&users); err != nil {
		return 0, 0, fmt.Errorf("count user aliases: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM series_aliases`).Scan(&series); err != nil {
		return 0, 0, fmt.Errorf("count series aliases: %w", err)
	}
	return users, series, nil
}
