package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/scanlibre/trackerbot/telemetry"
	"github.com/scanlibre/trackerbot/tracker"
)

// Handler consumes inbound chat messages that are not answers to a pending
// prompt. Implemented by tracker.Orchestrator.
type Handler interface {
	HandleMessage(ctx context.Context, req tracker.Request, text string)
}

// Bot joins one Twitch channel and bridges between the IRC stream and the
// tracker pipeline. It implements tracker.Prompter.
type Bot struct {
	client   *twitch.Client
	channel  string
	username string
	handler  Handler

	mu    sync.Mutex
	waits map[string]chan string
}

// New builds a Bot for channel using the given bot account credentials.
func New(channel, username, oauthToken string) *Bot {
	return &Bot{
		client:   twitch.NewClient(username, oauthToken),
		channel:  channel,
		username: username,
		waits:    make(map[string]chan string),
	}
}

// SetHandler wires the pipeline the bot feeds. Must be called before Run.
func (b *Bot) SetHandler(h Handler) { b.handler = h }

// Run connects to Twitch IRC and blocks until ctx is cancelled or the
// connection fails. Each non-prompt message is handled on its own goroutine
// so a pipeline suspended on an interactive prompt never stalls the read loop.
func (b *Bot) Run(ctx context.Context) error {
	b.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		// Ignore the bot's own messages.
		if strings.EqualFold(msg.User.Name, b.username) {
			return
		}

		// A pending prompt for this (channel, user) consumes the message.
		if b.deliver(msg.Channel, msg.User.Name, msg.Message) {
			return
		}

		if strings.EqualFold(strings.TrimSpace(msg.Message), "ping") {
			b.client.Say(msg.Channel, "pong")
			slog.Info("ping command invoked", slog.String("handle", msg.User.Name))
			return
		}

		if b.handler == nil {
			return
		}
		req := tracker.Request{Channel: msg.Channel, Handle: msg.User.Name}
		go b.handler.HandleMessage(ctx, req, msg.Message)
	})

	b.client.Join(b.channel)
	slog.Info("joining twitch chat", slog.String("channel", b.channel), slog.String("bot", b.username))

	errCh := make(chan error, 1)
	go func() { errCh <- b.client.Connect() }()

	select {
	case <-ctx.Done():
		if err := b.client.Disconnect(); err != nil {
			slog.Debug("twitch disconnect", slog.Any("err", err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Say sends text to channel.
func (b *Bot) Say(_ context.Context, channel, text string) {
	b.client.Say(channel, text)
}

// AwaitReply blocks for the next message from exactly (channel, user), up to
// timeout. Only one wait per (channel, user) may be pending; a second
// concurrent wait fails immediately rather than stealing replies.
func (b *Bot) AwaitReply(ctx context.Context, channel, user string, timeout time.Duration) (string, bool) {
	key := waitKey(channel, user)
	ch := make(chan string, 1)

	b.mu.Lock()
	if _, exists := b.waits[key]; exists {
		b.mu.Unlock()
		slog.Warn("prompt already pending for requester", slog.String("key", key))
		return "", false
	}
	b.waits[key] = ch
	b.mu.Unlock()

	telemetry.PromptPending(1)
	defer func() {
		telemetry.PromptPending(-1)
		b.mu.Lock()
		delete(b.waits, key)
		b.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// deliver routes text to a pending wait for (channel, user), if any.
func (b *Bot) deliver(channel, user, text string) bool {
	key := waitKey(channel, user)
	b.mu.Lock()
	ch, ok := b.waits[key]
	if ok {
		delete(b.waits, key)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	ch <- text
	return true
}

func waitKey(channel, user string) string {
	return strings.ToLower(channel) + "|" + strings.ToLower(user)
}
