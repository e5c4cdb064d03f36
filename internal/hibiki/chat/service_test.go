package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mvoisin/hibiki/common/trace"
	"github.com/mvoisin/hibiki/internal/hibiki/chat"
	"github.com/mvoisin/hibiki/internal/hibiki/llm"
	"github.com/mvoisin/hibiki/internal/hibiki/memory"
	"github.com/mvoisin/hibiki/internal/hibiki/quota"
	"github.com/mvoisin/hibiki/internal/hibiki/store"
)

// stubCompleter returns canned replies in order, or a fixed error.
type stubCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
	err     error
	// barrier, when non-nil, is waited on before returning so tests can
	// hold several calls in flight at once.
	barrier *sync.WaitGroup
}

func (s *stubCompleter) Complete(ctx context.Context, history []llm.Message, msg string) (*llm.Completion, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	err := s.err
	var reply string
	if err == nil {
		if call < len(s.replies) {
			reply = s.replies[call]
		} else {
			reply = fmt.Sprintf("reply-%d", call)
		}
	}
	barrier := s.barrier
	s.mu.Unlock()

	if barrier != nil {
		// Signal arrival, then wait for every expected call to arrive.
		barrier.Done()
		barrier.Wait()
	}
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: reply}, nil
}

// recordingLog captures chat-log writes for assertions.
type recordingLog struct {
	mu   sync.Mutex
	recs []store.ChatRecord
}

func (r *recordingLog) RecordChat(ctx context.Context, rec store.ChatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func newService(limit int, completer llm.Completer, rec chat.Recorder) (*chat.Service, *memory.Store) {
	mem := memory.NewStore("You are a helpful assistant.")
	return chat.NewService(quota.New(limit), mem, completer, rec), mem
}

func TestChatWithinLimit(t *testing.T) {
	completer := &stubCompleter{replies: []string{"R1", "R2"}}
	svc, mem := newService(2, completer, nil)
	ctx := context.Background()

	r1, err := svc.Chat(ctx, "@alice:example.com", "first")
	if err != nil {
		t.Fatalf("chat 1: %v", err)
	}
	if r1 != "R1" {
		t.Errorf("chat 1 reply: got %q, want R1", r1)
	}

	r2, err := svc.Chat(ctx, "@alice:example.com", "second")
	if err != nil {
		t.Fatalf("chat 2: %v", err)
	}
	if r2 != "R2" {
		t.Errorf("chat 2 reply: got %q, want R2", r2)
	}

	// System seed + two exchanges.
	if got := len(mem.History("@alice:example.com")); got != 5 {
		t.Errorf("history length: got %d, want 5", got)
	}
}

func TestChatLimitScenario(t *testing.T) {
	// limit=2; three calls on the same day: 1 and 2 succeed, 3 is rejected
	// with no provider call and no memory mutation.
	completer := &stubCompleter{replies: []string{"R1", "R2"}}
	svc, mem := newService(2, completer, nil)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, "@alice:example.com", "one"); err != nil {
		t.Fatalf("chat 1: %v", err)
	}
	if _, err := svc.Chat(ctx, "@alice:example.com", "two"); err != nil {
		t.Fatalf("chat 2: %v", err)
	}

	_, err := svc.Chat(ctx, "@alice:example.com", "three")
	if !errors.Is(err, chat.ErrLimitReached) {
		t.Fatalf("chat 3: got %v, want ErrLimitReached", err)
	}

	if completer.calls != 2 {
		t.Errorf("provider calls: got %d, want 2 (rejected call must not reach provider)", completer.calls)
	}
	// History holds only the two successful exchanges plus the seed.
	if got := len(mem.History("@alice:example.com")); got != 5 {
		t.Errorf("history length after rejection: got %d, want 5", got)
	}
}

func TestChatProviderFailureLeavesMemoryUntouched(t *testing.T) {
	completer := &stubCompleter{err: fmt.Errorf("%w: boom", llm.ErrProvider)}
	rec := &recordingLog{}
	svc, mem := newService(5, completer, rec)

	_, err := svc.Chat(context.Background(), "@alice:example.com", "hello")
	if !errors.Is(err, chat.ErrProviderFailure) {
		t.Fatalf("got %v, want ErrProviderFailure", err)
	}

	if got := len(mem.History("@alice:example.com")); got != 1 {
		t.Errorf("history after failed call: got %d entries, want 1 (seed only)", got)
	}

	// The failed attempt still consumed quota and was logged as an error.
	if got := svc.Remaining("@alice:example.com"); got != 4 {
		t.Errorf("remaining after failed call: got %d, want 4", got)
	}
	if len(rec.recs) != 1 || rec.recs[0].Result != "error" {
		t.Errorf("chat log: got %+v, want one error record", rec.recs)
	}
}

func TestChatRecordsSuccess(t *testing.T) {
	completer := &stubCompleter{replies: []string{"hello back"}}
	rec := &recordingLog{}
	svc, _ := newService(5, completer, rec)

	if _, err := svc.Chat(context.Background(), "@alice:example.com", "hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(rec.recs) != 1 {
		t.Fatalf("chat log: got %d records, want 1", len(rec.recs))
	}
	r := rec.recs[0]
	if r.Result != "success" || r.UserID != "@alice:example.com" {
		t.Errorf("record: %+v", r)
	}
	if r.ReplyChars != len("hello back") {
		t.Errorf("reply chars: got %d, want %d", r.ReplyChars, len("hello back"))
	}
	if r.TraceID == "" {
		t.Error("record missing trace ID")
	}
}

func TestChatUsesContextTraceID(t *testing.T) {
	completer := &stubCompleter{replies: []string{"ok"}}
	rec := &recordingLog{}
	svc, _ := newService(5, completer, rec)

	ctx := trace.WithTraceID(context.Background(), "t_fixed")
	if _, err := svc.Chat(ctx, "@alice:example.com", "hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(rec.recs) != 1 || rec.recs[0].TraceID != "t_fixed" {
		t.Errorf("chat log should carry the context trace ID, got %+v", rec.recs)
	}
}

func TestReset(t *testing.T) {
	completer := &stubCompleter{}
	svc, mem := newService(5, completer, nil)
	ctx := context.Background()

	if _, err := svc.Chat(ctx, "@alice:example.com", "hello"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if err := svc.Reset(ctx, "@alice:example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := len(mem.History("@alice:example.com")); got != 1 {
		t.Errorf("history after reset: got %d entries, want 1", got)
	}

	// Reset for a user with no history is also fine.
	if err := svc.Reset(ctx, "@stranger:example.com"); err != nil {
		t.Errorf("reset of unknown user: %v", err)
	}
}

func TestConcurrentUsersDoNotBlockEachOther(t *testing.T) {
	// Both provider calls must be in flight at the same time: each call
	// waits at a barrier that only releases once both have arrived. If the
	// orchestrator held a shared lock across the provider call, the second
	// chat could never start and the barrier would deadlock.
	var barrier sync.WaitGroup
	barrier.Add(2)
	completer := &stubCompleter{barrier: &barrier}
	svc, _ := newService(5, completer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan error, 2)
	for _, user := range []string{"@alice:example.com", "@bob:example.com"} {
		go func(u string) {
			_, err := svc.Chat(ctx, u, "hello from "+u)
			results <- err
		}(user)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Errorf("concurrent chat failed: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("concurrent chats deadlocked: provider calls were serialized")
		}
	}
}
