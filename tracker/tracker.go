// Package tracker implements the update pipeline: parse a chat message,
// resolve series and user aliases (prompting in chat when unknown), and write
// the assignment into the shared tracker sheet.
package tracker

import (
	"context"
	"time"

	"github.com/scanlibre/trackerbot/sheets"
)

// AliasStore persists handle -> display name and series name -> worksheet
// title mappings. Implemented by db.AliasStore.
type AliasStore interface {
	UpsertUser(ctx context.Context, handle, displayName string) error
	GetUser(ctx context.Context, handle string) (displayName string, found bool, err error)
	UpsertSeries(ctx context.Context, name, sheetTitle string) error
	GetSeries(ctx context.Context, name string) (sheetTitle string, found bool, err error)
}

// SheetGateway is the slice of the sheets gateway the pipeline needs.
type SheetGateway interface {
	WorksheetTitles(ctx context.Context) ([]string, error)
	WorksheetExists(ctx context.Context, title string) (bool, error)
	WriteEntry(ctx context.Context, title, chapter, task, displayName, status string, forceReplace bool, forceCol int) (sheets.UpdateResult, error)
}

// Prompter is the chat-side request/response contract for interactive
// resolution. AwaitReply blocks for the next message from exactly (channel,
// user); replies from anyone else never satisfy the wait. ok=false means the
// wait timed out or was cancelled.
type Prompter interface {
	Say(ctx context.Context, channel, text string)
	AwaitReply(ctx context.Context, channel, user string, timeout time.Duration) (reply string, ok bool)
}

// Request identifies the chat context an update came from. Prompts and
// outcome messages are scoped to it.
type Request struct {
	Channel string
	Handle  string
}
