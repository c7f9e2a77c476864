package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/scanlibre/trackerbot/telemetry"
)

// Resolver turns free-text series names and chat handles into worksheet
// titles and display names, prompting the requester when the alias store has
// no answer. Both flows are idempotent: once an alias is stored, repeated
// resolution causes no further interaction. Timeout and abort paths never
// write to the store.
type Resolver struct {
	Store    AliasStore
	Gateway  SheetGateway
	Prompter Prompter

	// FuzzyThreshold is the minimum token-sort-ratio score (0-100) for a
	// worksheet title to be offered as a suggestion.
	FuzzyThreshold int
	// PromptTimeout bounds every interactive wait in a resolution flow.
	PromptTimeout time.Duration
}

// ResolveSeries maps a series name to a worksheet title. On a store miss it
// fuzzy-matches the name against the live worksheet titles, offers the best
// match when it clears the threshold, and otherwise asks the requester to
// type the exact title. Typed titles are verified against the spreadsheet
// before being persisted; a confirmed suggestion that turns out not to exist
// gets exactly one typed retry.
func (r *Resolver) ResolveSeries(ctx context.Context, req Request, name string) (string, bool) {
	log := telemetry.Logger(ctx)

	title, found, err := r.Store.GetSeries(ctx, name)
	if err != nil {
		log.Error("series alias lookup failed", "series", name, "err", err)
		r.Prompter.Say(ctx, req.Channel, "Something went wrong looking up that series. Please try again.")
		return "", false
	}
	if found {
		return title, true
	}

	log.Info("requesting worksheet title for unknown series", "series", name)
	titles, err := r.Gateway.WorksheetTitles(ctx)
	if err != nil {
		log.Error("worksheet title listing failed", "err", err)
		r.Prompter.Say(ctx, req.Channel, "I couldn't reach the tracker sheet. Please try again later.")
		return "", false
	}

	suggested := r.bestMatch(name, titles)

	var candidate string
	fromSuggestion := false
	if suggested != "" {
		r.Prompter.Say(ctx, req.Channel, fmt.Sprintf(
			"I don't recognize '%s'. Did you mean '%s'? Reply yes to confirm, no to enter a different title, or type the correct worksheet title.",
			name, suggested))
		reply, ok := r.await(ctx, req)
		if !ok {
			log.Warn("timeout waiting for worksheet title", "series", name)
			r.Prompter.Say(ctx, req.Channel, "Timed out waiting for sheet title.")
			return "", false
		}
		switch {
		case strings.EqualFold(reply, "yes"):
			candidate = suggested
			fromSuggestion = true
		case strings.EqualFold(reply, "no"):
			r.Prompter.Say(ctx, req.Channel, "Please type the correct worksheet title (case-sensitive as in Sheets).")
			typed, ok := r.await(ctx, req)
			if !ok {
				log.Warn("timeout waiting for worksheet title", "series", name)
				r.Prompter.Say(ctx, req.Channel, "Timed out waiting for sheet title.")
				return "", false
			}
			candidate = typed
		default:
			// Anything else is taken as a directly typed title.
			candidate = reply
		}
	} else {
		r.Prompter.Say(ctx, req.Channel, fmt.Sprintf(
			"I don't recognize '%s'. Please reply with the worksheet title for this series (case-sensitive as in Sheets).", name))
		typed, ok := r.await(ctx, req)
		if !ok {
			log.Warn("timeout waiting for worksheet title", "series", name)
			r.Prompter.Say(ctx, req.Channel, "Timed out waiting for sheet title.")
			return "", false
		}
		candidate = typed
	}

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		log.Warn("empty worksheet title provided", "series", name, "handle", req.Handle)
		r.Prompter.Say(ctx, req.Channel, "Empty title provided. Aborting.")
		return "", false
	}

	exists, err := r.Gateway.WorksheetExists(ctx, candidate)
	if err != nil {
		log.Error("worksheet existence check failed", "title", candidate, "err", err)
		r.Prompter.Say(ctx, req.Channel, "I couldn't reach the tracker sheet. Please try again later.")
		return "", false
	}
	if !exists {
		if !fromSuggestion {
			log.Warn("invalid worksheet title provided", "title", candidate)
			r.Prompter.Say(ctx, req.Channel, "I couldn't find a worksheet with that title. Please check and try again next time.")
			return "", false
		}
		// The confirmed suggestion doesn't exist (sheet changed underneath
		// us); allow one typed correction.
		log.Warn("suggested worksheet not found", "title", candidate)
		r.Prompter.Say(ctx, req.Channel, "I couldn't find that worksheet title. Please type the correct one.")
		typed, ok := r.await(ctx, req)
		if !ok {
			r.Prompter.Say(ctx, req.Channel, "Timed out waiting for sheet title.")
			return "", false
		}
		candidate = strings.TrimSpace(typed)
		if candidate == "" {
			r.Prompter.Say(ctx, req.Channel, "Empty title provided. Aborting.")
			return "", false
		}
		exists, err = r.Gateway.WorksheetExists(ctx, candidate)
		if err != nil {
			log.Error("worksheet existence check failed", "title", candidate, "err", err)
			r.Prompter.Say(ctx, req.Channel, "I couldn't reach the tracker sheet. Please try again later.")
			return "", false
		}
		if !exists {
			log.Warn("invalid worksheet title provided", "title", candidate)
			r.Prompter.Say(ctx, req.Channel, "I couldn't find a worksheet with that title. Please check and try again next time.")
			return "", false
		}
	}

	if err := r.Store.UpsertSeries(ctx, name, candidate); err != nil {
		log.Error("failed to save series alias", "series", name, "title", candidate, "err", err)
		r.Prompter.Say(ctx, req.Channel, "I couldn't save that alias. Please try again.")
		return "", false
	}
	telemetry.CountAliasSaved("series")
	log.Info("saved new series alias", "series", name, "title", candidate)
	r.Prompter.Say(ctx, req.Channel, fmt.Sprintf("Saved alias: '%s' → worksheet '%s'.", name, candidate))
	return candidate, true
}

// ResolveUser maps a chat handle to the display name written into the sheet,
// prompting once when unknown. Empty or timed-out replies abort without
// touching the store.
func (r *Resolver) ResolveUser(ctx context.Context, req Request, handle string) (string, bool) {
	log := telemetry.Logger(ctx)

	displayName, found, err := r.Store.GetUser(ctx, handle)
	if err != nil {
		log.Error("user alias lookup failed", "handle", handle, "err", err)
		r.Prompter.Say(ctx, req.Channel, "Something went wrong looking up your scan name. Please try again.")
		return "", false
	}
	if found {
		return displayName, true
	}

	log.Info("requesting scan name for unknown user", "handle", handle)
	r.Prompter.Say(ctx, req.Channel, fmt.Sprintf(
		"I don't have a scan name for '%s'. Please reply with the name to use.", handle))
	reply, ok := r.await(ctx, req)
	if !ok {
		log.Warn("timeout waiting for scan name", "handle", handle)
		r.Prompter.Say(ctx, req.Channel, "Timed out waiting for scan name.")
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		log.Warn("empty scan name provided", "handle", handle)
		r.Prompter.Say(ctx, req.Channel, "Empty scan name provided. Aborting.")
		return "", false
	}

	if err := r.Store.UpsertUser(ctx, handle, reply); err != nil {
		log.Error("failed to save user alias", "handle", handle, "err", err)
		r.Prompter.Say(ctx, req.Channel, "I couldn't save that scan name. Please try again.")
		return "", false
	}
	telemetry.CountAliasSaved("user")
	log.Info("saved new user alias", "handle", handle, "display_name", reply)
	r.Prompter.Say(ctx, req.Channel, fmt.Sprintf("Saved scan name for '%s': '%s'.", handle, reply))
	return reply, true
}

func (r *Resolver) await(ctx context.Context, req Request) (string, bool) {
	reply, ok := r.Prompter.AwaitReply(ctx, req.Channel, req.Handle, r.PromptTimeout)
	if !ok && telemetry.PromptTimeouts != nil {
		telemetry.PromptTimeouts.Inc()
	}
	return reply, ok
}

// bestMatch returns the worksheet title with the highest token-sort-ratio
// score against name, or empty when nothing clears the threshold.
func (r *Resolver) bestMatch(name string, titles []string) string {
	best := ""
	bestScore := 0
	for _, t := range titles {
		score := fuzzy.TokenSortRatio(strings.ToLower(name), strings.ToLower(t))
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if best != "" && bestScore >= r.FuzzyThreshold {
		return best
	}
	return ""
}
