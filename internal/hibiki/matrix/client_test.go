package matrix

import (
	"context"
	"sync"
	"testing"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(&Config{
		Homeserver:  "https://matrix.example.com",
		UserID:      "@hibiki:example.com",
		AccessToken: "test-token",
		Rooms:       []string{"!room:example.com"},
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func textEvent(sender, room, body string) *event.Event {
	return &event.Event{
		Sender: id.UserID(sender),
		RoomID: id.RoomID(room),
		Content: event.Content{
			Parsed: &event.MessageEventContent{
				MsgType: event.MsgText,
				Body:    body,
			},
		},
	}
}

func TestHandleMessageDispatchesConcurrently(t *testing.T) {
	// The syncer delivers events one at a time from a single goroutine, so
	// handleMessage must return before the handler finishes. Each handler
	// invocation waits at a barrier that only releases once both events are
	// in flight; serial dispatch could never get the second one started.
	c := newTestClient(t)

	var barrier sync.WaitGroup
	barrier.Add(2)
	done := make(chan string, 2)
	c.msgHandler = func(ctx context.Context, evt *event.Event) {
		barrier.Done()
		barrier.Wait()
		done <- evt.Sender.String()
	}

	dispatched := make(chan struct{})
	go func() {
		c.handleMessage(context.Background(), textEvent("@alice:example.com", "!room:example.com", "!chat hi"))
		c.handleMessage(context.Background(), textEvent("@bob:example.com", "!room:example.com", "!ping"))
		close(dispatched)
	}()

	select {
	case <-dispatched:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch blocked behind a slow handler")
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case sender := <-done:
			seen[sender] = true
		case <-time.After(5 * time.Second):
			t.Fatal("handler invocations never completed")
		}
	}
	if !seen["@alice:example.com"] || !seen["@bob:example.com"] {
		t.Errorf("handlers ran for %v, want both senders", seen)
	}
}

func TestHandleMessageFilters(t *testing.T) {
	c := newTestClient(t)

	var mu sync.Mutex
	var handled []string
	c.msgHandler = func(ctx context.Context, evt *event.Event) {
		mu.Lock()
		handled = append(handled, evt.Sender.String())
		mu.Unlock()
	}

	// Own message, unconfigured room, and a non-text event are all dropped
	// before the handler is involved.
	c.handleMessage(context.Background(), textEvent("@hibiki:example.com", "!room:example.com", "!chat hi"))
	c.handleMessage(context.Background(), textEvent("@alice:example.com", "!other:example.com", "!chat hi"))
	c.handleMessage(context.Background(), &event.Event{
		Sender: id.UserID("@alice:example.com"),
		RoomID: id.RoomID("!room:example.com"),
		Content: event.Content{
			Parsed: &event.MessageEventContent{MsgType: event.MsgNotice, Body: "notice"},
		},
	})

	// One legitimate message does get through.
	c.handleMessage(context.Background(), textEvent("@alice:example.com", "!room:example.com", "!chat hi"))

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(handled)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("legitimate message never reached the handler")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give any stray dispatch a moment to land, then check nothing else did.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != "@alice:example.com" {
		t.Errorf("handled %v, want exactly one event from alice", handled)
	}
}

func TestNextSyncBackoffDoublesAndCaps(t *testing.T) {
	if got := nextSyncBackoff(syncBackoffMin); got != 2*syncBackoffMin {
		t.Errorf("first step: got %v, want %v", got, 2*syncBackoffMin)
	}

	d := syncBackoffMin
	for i := 0; i < 20; i++ {
		d = nextSyncBackoff(d)
	}
	if d != syncBackoffMax {
		t.Errorf("backoff after many failures: got %v, want cap %v", d, syncBackoffMax)
	}
}
