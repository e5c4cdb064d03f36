// Package chat composes the quota limiter, conversation memory, and model
// client into the two user-visible operations: chat and reset.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mvoisin/hibiki/common/trace"
	"github.com/mvoisin/hibiki/internal/hibiki/llm"
	"github.com/mvoisin/hibiki/internal/hibiki/memory"
	"github.com/mvoisin/hibiki/internal/hibiki/quota"
	"github.com/mvoisin/hibiki/internal/hibiki/store"
)

// ErrLimitReached is returned by Chat when the user has exhausted today's
// quota. A policy rejection, not a failure: no provider call is made and
// memory is left untouched.
var ErrLimitReached = errors.New("chat: daily usage limit reached")

// ErrProviderFailure is returned by Chat when the model call fails for any
// reason. The failed exchange is not appended to memory, so a transient
// provider error never pollutes the conversation context.
var ErrProviderFailure = errors.New("chat: model provider call failed")

// Recorder receives one chat-log entry per request that reached the
// provider. *store.Store satisfies it; tests use a stub.
type Recorder interface {
	RecordChat(ctx context.Context, rec store.ChatRecord) error
}

// Service orchestrates a chat request: quota check, history lookup,
// provider call, memory update. Safe for concurrent use; no lock is held
// across the provider call, so slow completions only delay their own user.
type Service struct {
	limiter   *quota.Limiter
	memory    *memory.Store
	completer llm.Completer
	recorder  Recorder // optional; nil disables the chat log
}

// NewService wires the chat orchestrator. recorder may be nil.
func NewService(limiter *quota.Limiter, mem *memory.Store, completer llm.Completer, recorder Recorder) *Service {
	return &Service{
		limiter:   limiter,
		memory:    mem,
		completer: completer,
		recorder:  recorder,
	}
}

// Chat handles one user message and returns the assistant's reply.
//
// Outcomes map onto exactly three branches: the reply text, ErrLimitReached
// (quota), or ErrProviderFailure (everything else). Only a successful
// provider call mutates conversation memory.
func (s *Service) Chat(ctx context.Context, userID, message string) (string, error) {
	// Reuse the transport-level trace ID when the caller supplied one so
	// the chat-log row ties back to the message that triggered it.
	requestID := trace.FromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	log := slog.With("request_id", requestID, "user", userID)

	if !s.limiter.CheckAndRecord(userID) {
		log.Info("chat rejected: daily limit reached", "limit", s.limiter.Limit())
		return "", ErrLimitReached
	}

	history := s.memory.History(userID)

	start := time.Now()
	completion, err := s.completer.Complete(ctx, history, message)
	if err != nil {
		log.Error("model call failed", "err", err)
		s.record(ctx, store.ChatRecord{
			TraceID:      requestID,
			UserID:       userID,
			PromptChars:  len(message),
			LatencyMS:    time.Since(start).Milliseconds(),
			Result:       "error",
			ErrorMessage: err.Error(),
		})
		return "", fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	s.memory.AppendExchange(userID, message, completion.Text)

	log.Info("chat completed",
		"history_len", len(history),
		"total_tokens", completion.Usage.TotalTokens,
		"latency_ms", completion.Usage.LatencyMS,
	)
	s.record(ctx, store.ChatRecord{
		TraceID:          requestID,
		UserID:           userID,
		PromptChars:      len(message),
		ReplyChars:       len(completion.Text),
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		LatencyMS:        completion.Usage.LatencyMS,
		Result:           "success",
	})

	return completion.Text, nil
}

// Reset discards the user's conversation history, restoring the seed state.
// The in-memory reset cannot fail; the error return exists for interface
// completeness should a persistent memory backend ever be wired in.
func (s *Service) Reset(ctx context.Context, userID string) error {
	s.memory.Reset(userID)
	slog.Info("conversation history reset", "user", userID)
	return nil
}

// Remaining reports how many requests the user may still make today.
func (s *Service) Remaining(userID string) int {
	return s.limiter.Remaining(userID)
}

// DailyLimit reports the configured per-user daily limit.
func (s *Service) DailyLimit() int {
	return s.limiter.Limit()
}

// record writes a chat-log entry when a recorder is configured. Logging is
// best-effort: a failed write is logged and never surfaces to the user.
func (s *Service) record(ctx context.Context, rec store.ChatRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordChat(ctx, rec); err != nil {
		slog.Warn("failed to write chat log", "trace", rec.TraceID, "err", err)
	}
}
