package tracker

import (
	"context"
	"strings"
	"time"

	"github.com/scanlibre/trackerbot/sheets"
)

// fakeStore is an in-memory AliasStore.
type fakeStore struct {
	users  map[string]string
	series map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]string{}, series: map[string]string{}}
}

func seriesKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func (s *fakeStore) UpsertUser(_ context.Context, handle, displayName string) error {
	s.users[handle] = displayName
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, handle string) (string, bool, error) {
	v, ok := s.users[handle]
	return v, ok, nil
}

func (s *fakeStore) UpsertSeries(_ context.Context, name, sheetTitle string) error {
	s.series[seriesKey(name)] = sheetTitle
	return nil
}

func (s *fakeStore) GetSeries(_ context.Context, name string) (string, bool, error) {
	v, ok := s.series[seriesKey(name)]
	return v, ok, nil
}

// writeCall records one WriteEntry invocation.
type writeCall struct {
	title, chapter, task, name, status string
	force                              bool
	forceCol                           int
}

// fakeGateway scripts WriteEntry outcomes and records calls.
type fakeGateway struct {
	titles  []string
	results []struct {
		res sheets.UpdateResult
		err error
	}
	writes []writeCall
}

func (g *fakeGateway) WorksheetTitles(context.Context) ([]string, error) {
	return g.titles, nil
}

func (g *fakeGateway) WorksheetExists(_ context.Context, title string) (bool, error) {
	for _, t := range g.titles {
		if t == title {
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGateway) queue(res sheets.UpdateResult, err error) {
	g.results = append(g.results, struct {
		res sheets.UpdateResult
		err error
	}{res, err})
}

func (g *fakeGateway) WriteEntry(_ context.Context, title, chapter, task, displayName, status string, forceReplace bool, forceCol int) (sheets.UpdateResult, error) {
	g.writes = append(g.writes, writeCall{title, chapter, task, displayName, status, forceReplace, forceCol})
	if len(g.results) == 0 {
		return sheets.UpdateResult{}, nil
	}
	next := g.results[0]
	g.results = g.results[1:]
	return next.res, next.err
}

// timeoutReply makes the scripted prompter simulate an expired wait.
const timeoutReply = "\x00timeout"

// scriptPrompter replays canned replies and records everything said.
type scriptPrompter struct {
	replies []string
	says    []string
}

func (p *scriptPrompter) Say(_ context.Context, _, text string) {
	p.says = append(p.says, text)
}

func (p *scriptPrompter) AwaitReply(_ context.Context, _, _ string, _ time.Duration) (string, bool) {
	if len(p.replies) == 0 {
		return "", false
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	if next == timeoutReply {
		return "", false
	}
	return next, true
}

func (p *scriptPrompter) saidContaining(sub string) bool {
	for _, s := range p.says {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
