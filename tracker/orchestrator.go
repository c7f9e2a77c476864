package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scanlibre/trackerbot/parser"
	"github.com/scanlibre/trackerbot/sheets"
	"github.com/scanlibre/trackerbot/telemetry"
)

// Orchestrator drives one update end-to-end:
//
//	ParseMessage → ResolveSeries → ResolveUser → AttemptWrite →
//	  {Done | AwaitCollisionDecision → {ForcedWrite → Done | Cancelled}}
//
// Every terminal path ends in a chat-visible message (except a parse miss,
// which is silently dropped) and a logged diagnostic. Nothing is retried:
// a timed-out or failed update means the user resends the original message.
type Orchestrator struct {
	Grammar  parser.Grammar
	Resolver *Resolver
	Gateway  SheetGateway
	Prompter Prompter

	// ReplaceTimeout bounds the collision replace/cancel decision wait.
	ReplaceTimeout time.Duration
}

// HandleMessage inspects one chat message and, when it parses as a status
// update, runs the pipeline. Non-matching messages are dropped without any
// user-visible reaction.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request, text string) {
	if telemetry.MessagesSeen != nil {
		telemetry.MessagesSeen.Inc()
	}

	upd, ok := parser.Parse(o.Grammar, text)
	if !ok {
		if telemetry.ParseMisses != nil {
			telemetry.ParseMisses.Inc()
		}
		telemetry.Logger(ctx).Debug("message did not match grammar",
			"grammar", o.Grammar.Name(), "channel", req.Channel, "handle", req.Handle)
		return
	}

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "tracker", "tracker.update",
		attribute.String("series", upd.Series),
		attribute.String("chapter", upd.Chapter),
		attribute.String("task", upd.Task),
		attribute.String("status", upd.Status),
	)
	defer span.End()

	start := time.Now()
	defer func() { telemetry.ObserveUpdate(time.Since(start)) }()

	log := telemetry.Logger(ctx)
	log.Info("processing tracker update",
		"series", upd.Series, "chapter", upd.Chapter,
		"task", upd.Task, "status", upd.Status, "handle", req.Handle)

	title, ok := o.Resolver.ResolveSeries(ctx, req, upd.Series)
	if !ok {
		log.Error("failed to resolve sheet title", "series", upd.Series)
		o.failed()
		return
	}
	displayName, ok := o.Resolver.ResolveUser(ctx, req, req.Handle)
	if !ok {
		log.Error("failed to resolve scan name", "handle", req.Handle)
		o.failed()
		return
	}

	res, err := o.Gateway.WriteEntry(ctx, title, upd.Chapter, upd.Task, displayName, upd.Status, false, 0)
	if err != nil {
		telemetry.RecordError(span, err)
		o.reportWriteError(ctx, req, title, upd, err)
		o.failed()
		return
	}

	if res.Collision != sheets.CollisionNone {
		if telemetry.Collisions != nil {
			telemetry.Collisions.Inc()
		}
		if !o.resolveCollision(ctx, req, title, upd, displayName, res) {
			return
		}
	}

	if telemetry.UpdatesSucceeded != nil {
		telemetry.UpdatesSucceeded.Inc()
	}
	log.Info("tracker updated",
		"worksheet", title, "chapter", upd.Chapter,
		"task", upd.Task, "name", displayName, "status", upd.Status)
	o.Prompter.Say(ctx, req.Channel, fmt.Sprintf(
		"Updated: %s • Chapter %s • %s → %s [%s]",
		title, upd.Chapter, upd.Task, displayName, upd.Status))
}

// resolveCollision asks the requester whether to overwrite the occupied slot
// and performs the forced write on "replace". Returns false when the update
// ended (cancelled or failed) and no success message should follow.
func (o *Orchestrator) resolveCollision(ctx context.Context, req Request, title string, upd parser.StatusUpdate, displayName string, res sheets.UpdateResult) bool {
	log := telemetry.Logger(ctx)
	log.Warn("name slot collision",
		"worksheet", title, "chapter", upd.Chapter, "task", upd.Task,
		"existing", res.ExistingNames)

	var prompt string
	switch res.Collision {
	case sheets.CollisionSingle:
		prompt = fmt.Sprintf("This task is already assigned to %s. Reply replace to overwrite, or cancel.",
			res.ExistingNames[0])
	default:
		prompt = fmt.Sprintf("All slots are occupied by: %s. Reply replace to overwrite the first entry, or cancel.",
			strings.Join(res.ExistingNames, ", "))
	}
	o.Prompter.Say(ctx, req.Channel, prompt)

	reply, ok := o.Prompter.AwaitReply(ctx, req.Channel, req.Handle, o.ReplaceTimeout)
	if !ok || !strings.EqualFold(strings.TrimSpace(reply), "replace") {
		if !ok && telemetry.PromptTimeouts != nil {
			telemetry.PromptTimeouts.Inc()
		}
		o.Prompter.Say(ctx, req.Channel, "No changes made.")
		return false
	}

	if _, err := o.Gateway.WriteEntry(ctx, title, upd.Chapter, upd.Task, displayName, upd.Status, true, res.ReplaceCol); err != nil {
		log.Error("failed to replace entry",
			"worksheet", title, "chapter", upd.Chapter, "task", upd.Task, "err", err)
		o.reportWriteError(ctx, req, title, upd, err)
		o.failed()
		return false
	}
	log.Info("replaced entry after collision",
		"worksheet", title, "chapter", upd.Chapter, "task", upd.Task,
		"name", displayName, "status", upd.Status)
	return true
}

// reportWriteError maps gateway errors to the user-visible failure messages.
// Remote failures are surfaced verbatim; there is no retry.
func (o *Orchestrator) reportWriteError(ctx context.Context, req Request, title string, upd parser.StatusUpdate, err error) {
	log := telemetry.Logger(ctx)
	log.Error("failed to update sheet",
		"worksheet", title, "chapter", upd.Chapter, "task", upd.Task, "err", err)

	var reason string
	switch {
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		reason = "Worksheet not found."
	case errors.Is(err, sheets.ErrChapterNotFound):
		reason = fmt.Sprintf("Chapter %s not found. Please verify the chapter.", upd.Chapter)
	case errors.Is(err, sheets.ErrTaskColumnsNotFound):
		reason = fmt.Sprintf("Task %q not found on that sheet. Please verify the task.", upd.Task)
	default:
		reason = err.Error()
	}
	o.Prompter.Say(ctx, req.Channel, "I couldn't update the sheet. "+reason)
}

func (o *Orchestrator) failed() {
	if telemetry.UpdatesFailed != nil {
		telemetry.UpdatesFailed.Inc()
	}
}
