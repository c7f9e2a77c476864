package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// MockSheetsServer simulates the slice of the Google Sheets API the gateway
// uses: spreadsheet metadata, Values.Get for rows/columns/cells, and
// Values.Update for single cells. Worksheets are in-memory grids indexed
// [row][col], 0-based internally, 1-based at the API boundary.
type MockSheetsServer struct {
	*httptest.Server

	mu     sync.Mutex
	Grids  map[string][][]string
	order  []string
	Writes int
	// FailWrites makes Values.Update return HTTP 500 after this many
	// successful writes; zero means never fail.
	FailWrites int
}

// NewMockSheetsServer creates a mock Sheets API server.
func NewMockSheetsServer(t *testing.T) *MockSheetsServer {
	t.Helper()
	m := &MockSheetsServer{Grids: make(map[string][][]string)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Close)
	return m
}

// AddWorksheet registers a worksheet grid under title.
func (m *MockSheetsServer) AddWorksheet(title string, grid [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Grids[title]; !ok {
		m.order = append(m.order, title)
	}
	m.Grids[title] = grid
}

// Cell returns the current value at 1-based (row, col), or empty.
func (m *MockSheetsServer) Cell(title string, row, col int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	grid := m.Grids[title]
	if row-1 >= len(grid) || col-1 >= len(grid[row-1]) {
		return ""
	}
	return grid[row-1][col-1]
}

// Service returns a Sheets API client wired to this mock server.
func (m *MockSheetsServer) Service(t *testing.T) *sheetsapi.Service {
	t.Helper()
	svc, err := sheetsapi.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(m.URL))
	if err != nil {
		t.Fatalf("failed to create sheets service: %v", err)
	}
	return svc
}

func (m *MockSheetsServer) handle(w http.ResponseWriter, r *http.Request) {
	path, err := url.PathUnescape(r.URL.Path)
	if err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}
	// /v4/spreadsheets/{id}/values/{range} or /v4/spreadsheets/{id}
	if idx := strings.Index(path, "/values/"); idx >= 0 {
		rng := path[idx+len("/values/"):]
		switch r.Method {
		case http.MethodGet:
			m.handleValuesGet(w, rng)
		case http.MethodPut:
			m.handleValuesUpdate(w, r, rng)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if strings.Contains(path, "/spreadsheets/") {
		m.handleSpreadsheetGet(w)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (m *MockSheetsServer) handleSpreadsheetGet(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss := &sheetsapi.Spreadsheet{}
	for _, title := range m.order {
		ss.Sheets = append(ss.Sheets, &sheetsapi.Sheet{
			Properties: &sheetsapi.SheetProperties{Title: title},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ss) //nolint:errcheck // test mock response
}

func (m *MockSheetsServer) handleValuesGet(w http.ResponseWriter, rng string) {
	title, ref, err := splitRange(rng)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	grid, ok := m.Grids[title]
	if !ok {
		http.Error(w, fmt.Sprintf("worksheet %q not found", title), http.StatusBadRequest)
		return
	}

	vr := &sheetsapi.ValueRange{Range: rng, MajorDimension: "ROWS"}
	switch {
	case isRowRef(ref):
		row, _ := strconv.Atoi(strings.Split(ref, ":")[0])
		if row-1 < len(grid) {
			vr.Values = [][]interface{}{toIfaces(grid[row-1])}
		}
	case isColRef(ref):
		col := colIndex(strings.Split(ref, ":")[0])
		for _, gridRow := range grid {
			v := ""
			if col-1 < len(gridRow) {
				v = gridRow[col-1]
			}
			vr.Values = append(vr.Values, []interface{}{v})
		}
	default:
		row, col, err := cellRef(ref)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if row-1 < len(grid) && col-1 < len(grid[row-1]) && grid[row-1][col-1] != "" {
			vr.Values = [][]interface{}{{grid[row-1][col-1]}}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(vr) //nolint:errcheck // test mock response
}

func (m *MockSheetsServer) handleValuesUpdate(w http.ResponseWriter, r *http.Request, rng string) {
	title, ref, err := splitRange(rng)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	row, col, err := cellRef(ref)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body sheetsapi.ValueRange
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(body.Values) == 0 || len(body.Values[0]) == 0 {
		http.Error(w, "empty values", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites > 0 && m.Writes >= m.FailWrites {
		http.Error(w, "simulated write failure", http.StatusInternalServerError)
		return
	}
	grid, ok := m.Grids[title]
	if !ok {
		http.Error(w, fmt.Sprintf("worksheet %q not found", title), http.StatusBadRequest)
		return
	}
	for len(grid) < row {
		grid = append(grid, nil)
	}
	for len(grid[row-1]) < col {
		grid[row-1] = append(grid[row-1], "")
	}
	grid[row-1][col-1] = fmt.Sprintf("%v", body.Values[0][0])
	m.Grids[title] = grid
	m.Writes++

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&sheetsapi.UpdateValuesResponse{ //nolint:errcheck // test mock response
		UpdatedCells: 1,
		UpdatedRange: rng,
	})
}

// splitRange separates "'Title'!A1" into the unquoted title and the A1 ref.
func splitRange(rng string) (title, ref string, err error) {
	idx := strings.LastIndex(rng, "!")
	if idx < 0 {
		return "", "", fmt.Errorf("range %q missing sheet title", rng)
	}
	title, ref = rng[:idx], rng[idx+1:]
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	return title, ref, nil
}

func isRowRef(ref string) bool {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return false
	}
	_, err := strconv.Atoi(parts[0])
	return err == nil
}

func isColRef(ref string) bool {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return false
	}
	return colIndex(parts[0]) > 0
}

func cellRef(ref string) (row, col int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("bad cell ref %q", ref)
	}
	col = colIndex(ref[:i])
	row, err = strconv.Atoi(ref[i:])
	if err != nil {
		return 0, 0, fmt.Errorf("bad cell ref %q", ref)
	}
	return row, col, nil
}

func colIndex(letters string) int {
	col := 0
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return 0
		}
		col = col*26 + int(c-'A') + 1
	}
	return col
}

func toIfaces(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}
