// Package parser extracts structured status updates from free-text chat messages.
//
// Two incompatible grammars exist for the same update: name-first
// ("Goblin Slayer ch12.5 Translate Done") and status-first
// ("Done Translate ch12.5 Goblin Slayer"). A deployment picks exactly one via
// TRACKER_GRAMMAR; running both against the same stream would let ambiguous
// messages match under either order.
package parser

import (
	"regexp"
	"strings"
)

// StatusUpdate is the structured record extracted from a chat message.
// Chapter is kept as the literal string token (e.g. "12.5"); it is a row key,
// not a number.
type StatusUpdate struct {
	Series  string
	Chapter string
	Task    string
	Status  string
}

// Grammar matches a cleaned message and extracts a StatusUpdate.
type Grammar interface {
	Name() string
	Match(cleaned string) (StatusUpdate, bool)
}

var (
	nameFirstRe   = regexp.MustCompile(`(?i)^(.+?)\s+ch\s*(\d+(?:\.\d+)?)\s+([A-Za-z]+)\s+(done|working|help)$`)
	statusFirstRe = regexp.MustCompile(`(?i)^(done|working|help)\s+([A-Za-z]+)\s+ch\s*(\d+(?:\.\d+)?)\s+(.+)$`)
)

type nameFirst struct{}

func (nameFirst) Name() string { return "name-first" }

func (nameFirst) Match(cleaned string) (StatusUpdate, bool) {
	m := nameFirstRe.FindStringSubmatch(cleaned)
	if m == nil {
		return StatusUpdate{}, false
	}
	return StatusUpdate{
		Series:  m[1],
		Chapter: m[2],
		Task:    m[3],
		Status:  NormalizeStatus(m[4]),
	}, true
}

type statusFirst struct{}

func (statusFirst) Name() string { return "status-first" }

func (statusFirst) Match(cleaned string) (StatusUpdate, bool) {
	m := statusFirstRe.FindStringSubmatch(cleaned)
	if m == nil {
		return StatusUpdate{}, false
	}
	return StatusUpdate{
		Series:  m[4],
		Chapter: m[3],
		Task:    m[2],
		Status:  NormalizeStatus(m[1]),
	}, true
}

// NameFirst returns the "<name> ch<chapter> <task> <status>" grammar.
func NameFirst() Grammar { return nameFirst{} }

// StatusFirst returns the "<status> <task> ch<chapter> <name>" grammar.
func StatusFirst() Grammar { return statusFirst{} }

// ForName returns the grammar registered under name, defaulting to name-first.
func ForName(name string) Grammar {
	if name == "status-first" {
		return StatusFirst()
	}
	return NameFirst()
}

// Parse collapses whitespace runs in raw and applies g. A false return means
// the message is not a status update; callers log at debug and drop it.
func Parse(g Grammar, raw string) (StatusUpdate, bool) {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return StatusUpdate{}, false
	}
	return g.Match(cleaned)
}

// NormalizeStatus capitalizes a status keyword: done -> Done. Idempotent.
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
