package chat

import (
	"context"
	"sync"
	"testing"
	"time"
)

func testBot() *Bot {
	return New("#scans", "trackerbot", "oauth:token")
}

func TestAwaitReplyDelivered(t *testing.T) {
	b := testBot()

	var wg sync.WaitGroup
	wg.Add(1)
	var reply string
	var ok bool
	go func() {
		defer wg.Done()
		reply, ok = b.AwaitReply(context.Background(), "#scans", "steve", time.Second)
	}()

	// Wait for the registration to appear, then deliver.
	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		registered := len(b.waits) == 1
		b.mu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("wait never registered")
		}
		time.Sleep(time.Millisecond)
	}
	if !b.deliver("#scans", "Steve", "Goblin Slayer") {
		t.Fatal("deliver found no pending wait (user matching should be case-insensitive)")
	}
	wg.Wait()

	if !ok || reply != "Goblin Slayer" {
		t.Fatalf("AwaitReply = %q, %v", reply, ok)
	}
}

func TestAwaitReplyTimeout(t *testing.T) {
	b := testBot()
	start := time.Now()
	reply, ok := b.AwaitReply(context.Background(), "#scans", "steve", 10*time.Millisecond)
	if ok || reply != "" {
		t.Fatalf("AwaitReply = %q, %v; want timeout", reply, ok)
	}
	if time.Since(start) > time.Second {
		t.Error("timeout took too long")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.waits) != 0 {
		t.Error("wait not cleaned up after timeout")
	}
}

func TestAwaitReplyContextCancel(t *testing.T) {
	b := testBot()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if _, ok := b.AwaitReply(ctx, "#scans", "steve", time.Minute); ok {
		t.Fatal("expected cancelled wait to fail")
	}
}

// A message from another user must not satisfy the wait.
func TestDeliverScopedToRequester(t *testing.T) {
	b := testBot()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := b.AwaitReply(context.Background(), "#scans", "steve", 50*time.Millisecond); ok {
			t.Error("wait satisfied unexpectedly")
		}
	}()

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		registered := len(b.waits) == 1
		b.mu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("wait never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if b.deliver("#scans", "alice", "not yours") {
		t.Error("deliver matched the wrong user")
	}
	if b.deliver("#other", "steve", "wrong channel") {
		t.Error("deliver matched the wrong channel")
	}
	<-done
}

// Two concurrent waits for the same requester would race over one reply; the
// second must fail fast instead of registering.
func TestAwaitReplySecondWaitRejected(t *testing.T) {
	b := testBot()

	release := make(chan struct{})
	go func() {
		_, _ = b.AwaitReply(context.Background(), "#scans", "steve", time.Second)
		close(release)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.Lock()
		registered := len(b.waits) == 1
		b.mu.Unlock()
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("wait never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if _, ok := b.AwaitReply(context.Background(), "#scans", "STEVE", time.Second); ok {
		t.Fatal("second concurrent wait should be rejected")
	}
	b.deliver("#scans", "steve", "done")
	<-release
}
