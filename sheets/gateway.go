// Package sheets talks to the group's tracker spreadsheet through the Google
// Sheets API. It locates task column groups from the two header rows, locates
// chapter rows from column A, and writes name/status cell pairs.
//
// Nothing here is cached: the sheet is shared and editable by humans between
// any two calls, so column groups and row positions are recomputed per lookup.
// Concurrent writers race at single-cell granularity; last writer wins.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/scanlibre/trackerbot/telemetry"
)

var (
	ErrWorksheetNotFound   = errors.New("worksheet not found")
	ErrChapterNotFound     = errors.New("chapter not found")
	ErrTaskColumnsNotFound = errors.New("task columns not found")
)

// TaskColumnGroup is the contiguous header range covering one task: one or
// more name columns and exactly one status column, all 1-indexed. Recomputed
// per lookup, never stored.
type TaskColumnGroup struct {
	NameCols  []int
	StatusCol int
}

// CollisionKind distinguishes the single-slot and multi-slot collision shapes.
type CollisionKind int

const (
	CollisionNone CollisionKind = iota
	CollisionSingle
	CollisionMulti
)

// UpdateResult reports the outcome of WriteEntry. A collision is not an
// error: the caller decides whether to retry with force.
type UpdateResult struct {
	Collision     CollisionKind
	ExistingNames []string
	ReplaceCol    int
	// Column is the name column written on success.
	Column int
}

// Gateway wraps the Sheets API for one spreadsheet.
type Gateway struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// New builds a Gateway authenticated with a service-account credentials file
// (the same credentials.json shape Google hands out for server-to-server use).
func New(ctx context.Context, spreadsheetID, credentialsFile string) (*Gateway, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(jwtCfg.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Gateway{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewWithService builds a Gateway around an existing Sheets service. Tests use
// this with an httptest-backed service.
func NewWithService(svc *sheetsapi.Service, spreadsheetID string) *Gateway {
	return &Gateway{svc: svc, spreadsheetID: spreadsheetID}
}

// WorksheetTitles lists the titles of every worksheet in the spreadsheet.
func (g *Gateway) WorksheetTitles(ctx context.Context) ([]string, error) {
	ss, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list worksheets: %w", err)
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

// WorksheetExists reports whether a worksheet with the exact title exists.
func (g *Gateway) WorksheetExists(ctx context.Context, title string) (bool, error) {
	titles, err := g.WorksheetTitles(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range titles {
		if t == title {
			return true, nil
		}
	}
	return false, nil
}

// rowValues reads one 1-indexed row of a worksheet as strings.
func (g *Gateway) rowValues(ctx context.Context, title string, row int) ([]string, error) {
	rng := fmt.Sprintf("%s!%d:%d", quoteTitle(title), row, row)
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read row %d of %q: %w", row, title, err)
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	return toStrings(vr.Values[0]), nil
}

// colValues reads one 1-indexed column of a worksheet as strings.
func (g *Gateway) colValues(ctx context.Context, title string, col int) ([]string, error) {
	letter := colLetter(col)
	rng := fmt.Sprintf("%s!%s:%s", quoteTitle(title), letter, letter)
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read column %s of %q: %w", letter, title, err)
	}
	out := make([]string, 0, len(vr.Values))
	for _, row := range vr.Values {
		if len(row) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, fmt.Sprintf("%v", row[0]))
	}
	return out, nil
}

// cellValue reads a single cell (1-indexed row and column).
func (g *Gateway) cellValue(ctx context.Context, title string, row, col int) (string, error) {
	rng := fmt.Sprintf("%s!%s%d", quoteTitle(title), colLetter(col), row)
	vr, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read cell (%d,%d) of %q: %w", row, col, title, err)
	}
	if len(vr.Values) == 0 || len(vr.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%v", vr.Values[0][0]), nil
}

// updateCell writes a single cell value (1-indexed row and column), RAW input.
func (g *Gateway) updateCell(ctx context.Context, title string, row, col int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", quoteTitle(title), colLetter(col), row)
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{{value}}}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write cell (%d,%d) of %q: %w", row, col, title, err)
	}
	return nil
}

// TaskColumns locates the column group for a task from the worksheet's two
// header rows. Row 2 holds task super-labels; row 3 holds "Name"/"Status"
// sub-labels, where a blank sub-label directly continuing a found name column
// is an extra unlabeled name slot. The first "Status" sub-label fixes the
// status column and ends the scan. A group with zero name columns or no
// status column is not partially usable and fails whole.
func (g *Gateway) TaskColumns(ctx context.Context, title, task string) (TaskColumnGroup, error) {
	headerRow, err := g.rowValues(ctx, title, 2)
	if err != nil {
		return TaskColumnGroup{}, err
	}
	if len(headerRow) == 0 {
		slog.Warn("no header row found", slog.String("worksheet", title))
		return TaskColumnGroup{}, fmt.Errorf("%w: task %q in %q", ErrTaskColumnsNotFound, task, title)
	}

	target := strings.ToLower(strings.TrimSpace(task))
	startCol := 0
	for idx, label := range headerRow {
		if strings.ToLower(strings.TrimSpace(label)) == target {
			startCol = idx + 1
			break
		}
	}
	if startCol == 0 {
		slog.Warn("task not found in header row", slog.String("task", task), slog.String("worksheet", title))
		return TaskColumnGroup{}, fmt.Errorf("%w: task %q in %q", ErrTaskColumnsNotFound, task, title)
	}

	subHeaders, err := g.rowValues(ctx, title, 3)
	if err != nil {
		return TaskColumnGroup{}, err
	}

	// End of this task's range: the next non-empty super-label, or end of headers.
	endCol := len(subHeaders) + 1
	for idx := startCol; idx < len(headerRow); idx++ {
		if strings.TrimSpace(headerRow[idx]) != "" {
			endCol = idx + 1
			break
		}
	}

	group := TaskColumnGroup{}
	for col := startCol; col < endCol; col++ {
		if col > len(subHeaders) {
			break
		}
		label := subHeaders[col-1]
		lower := strings.ToLower(strings.TrimSpace(label))
		switch {
		case lower == "name",
			lower == "" && len(group.NameCols) > 0 && group.StatusCol == 0:
			group.NameCols = append(group.NameCols, col)
		case lower == "status":
			group.StatusCol = col
		}
		if group.StatusCol != 0 {
			break
		}
	}

	if len(group.NameCols) == 0 || group.StatusCol == 0 {
		slog.Warn("incomplete task column group",
			slog.String("task", task), slog.String("worksheet", title),
			slog.Any("name_cols", group.NameCols), slog.Int("status_col", group.StatusCol))
		return TaskColumnGroup{}, fmt.Errorf("%w: task %q in %q", ErrTaskColumnsNotFound, task, title)
	}
	slog.Debug("task column group located",
		slog.String("task", task), slog.String("worksheet", title),
		slog.Any("name_cols", group.NameCols), slog.Int("status_col", group.StatusCol))
	return group, nil
}

// RowForChapter scans column A for an exact trimmed match of the chapter key
// and returns the 1-based row index.
func (g *Gateway) RowForChapter(ctx context.Context, title, chapter string) (int, error) {
	colA, err := g.colValues(ctx, title, 1)
	if err != nil {
		return 0, err
	}
	target := strings.TrimSpace(chapter)
	for idx, val := range colA {
		if strings.TrimSpace(val) == target {
			return idx + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: chapter %q in %q", ErrChapterNotFound, chapter, title)
}

// WriteEntry records displayName/status for (chapter, task). Single-slot
// groups collide when occupied by a different name; multi-slot groups take
// the first empty slot and collide only when full. forceReplace overwrites:
// forceCol picks the slot, defaulting to the group's first name column.
//
// The name cell and status cell are written in that order as two separate
// calls; a failure between them leaves the row half-written with no rollback.
func (g *Gateway) WriteEntry(ctx context.Context, title, chapter, task, displayName, status string, forceReplace bool, forceCol int) (UpdateResult, error) {
	start := time.Now()
	defer func() {
		telemetry.ObserveSheetWrite(time.Since(start))
	}()

	exists, err := g.WorksheetExists(ctx, title)
	if err != nil {
		return UpdateResult{}, err
	}
	if !exists {
		return UpdateResult{}, fmt.Errorf("%w: %q", ErrWorksheetNotFound, title)
	}

	row, err := g.RowForChapter(ctx, title, chapter)
	if err != nil {
		return UpdateResult{}, err
	}
	group, err := g.TaskColumns(ctx, title, task)
	if err != nil {
		return UpdateResult{}, err
	}

	if len(group.NameCols) == 1 {
		targetCol := group.NameCols[0]
		existing, err := g.cellValue(ctx, title, row, targetCol)
		if err != nil {
			return UpdateResult{}, err
		}
		occupant := strings.TrimSpace(existing)
		if occupant != "" && occupant != displayName && !forceReplace {
			slog.Warn("single name slot occupied",
				slog.String("worksheet", title), slog.String("chapter", chapter),
				slog.String("task", task), slog.String("existing", existing))
			return UpdateResult{
				Collision:     CollisionSingle,
				ExistingNames: []string{occupant},
				ReplaceCol:    targetCol,
			}, nil
		}
		if err := g.writePair(ctx, title, row, targetCol, group.StatusCol, displayName, status); err != nil {
			return UpdateResult{}, err
		}
		return UpdateResult{Column: targetCol}, nil
	}

	targetCol := 0
	occupied := make([]string, 0, len(group.NameCols))
	for _, col := range group.NameCols {
		val, err := g.cellValue(ctx, title, row, col)
		if err != nil {
			return UpdateResult{}, err
		}
		if strings.TrimSpace(val) == "" {
			if targetCol == 0 {
				targetCol = col
			}
		} else {
			occupied = append(occupied, strings.TrimSpace(val))
		}
	}

	if targetCol == 0 {
		if !forceReplace {
			slog.Warn("all name slots occupied",
				slog.String("worksheet", title), slog.String("chapter", chapter),
				slog.String("task", task), slog.Any("existing", occupied))
			return UpdateResult{
				Collision:     CollisionMulti,
				ExistingNames: occupied,
				ReplaceCol:    group.NameCols[0],
			}, nil
		}
		targetCol = group.NameCols[0]
		if forceCol != 0 {
			targetCol = forceCol
		}
	}

	if err := g.writePair(ctx, title, row, targetCol, group.StatusCol, displayName, status); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Column: targetCol}, nil
}

// writePair writes the name cell then the status cell. Not atomic; see WriteEntry.
func (g *Gateway) writePair(ctx context.Context, title string, row, nameCol, statusCol int, displayName, status string) error {
	if err := g.updateCell(ctx, title, row, nameCol, displayName); err != nil {
		return err
	}
	if err := g.updateCell(ctx, title, row, statusCol, status); err != nil {
		return err
	}
	slog.Info("sheet entry updated",
		slog.String("worksheet", title), slog.Int("row", row),
		slog.Int("name_col", nameCol), slog.Int("status_col", statusCol),
		slog.String("name", displayName), slog.String("status", status))
	return nil
}

func toStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprintf("%v", v)
	}
	return out
}

// colLetter converts a 1-indexed column number to its A1 letter form.
func colLetter(col int) string {
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// quoteTitle wraps a worksheet title in single quotes for A1 notation,
// doubling embedded quotes.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
