// Package llm provides the model-client layer for Hibiki.
//
// It sits between the chat orchestrator and the remote completion API.
// Its sole responsibility is transport: assemble the ordered message list
// (system seed, prior exchanges, new user message), issue the request, and
// extract the assistant's reply. Conversation state lives elsewhere; every
// call carries its full context explicitly.
package llm

import (
	"context"
	"errors"
)

// ErrProvider is the common ancestor for every failure the completion
// client can report: network errors, authentication failures, API error
// payloads, empty or malformed responses. Callers that only need to know
// "the provider call failed" match this with errors.Is and show a uniform
// fallback message instead of leaking provider detail to the end user.
var ErrProvider = errors.New("llm: provider request failed")

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429 Too Many Requests). It matches ErrProvider too, so
// callers may treat it as a generic failure or single it out for a more
// specific message.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// Message roles understood by OpenAI-compatible chat APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged utterance in a conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// TokenUsage carries the token counts reported by the upstream API for a
// single completion call. Fields are zero-valued when the provider does not
// report usage data.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the input (history + new message).
	PromptTokens int
	// CompletionTokens is the number of tokens in the model's reply.
	CompletionTokens int
	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
	// Model is the model name as reported by the provider (may be empty for
	// providers that do not echo it back).
	Model string
	// LatencyMS is the observed HTTP round-trip time in milliseconds.
	LatencyMS int64
}

// Completion is the result of a successful Complete call.
type Completion struct {
	// Text is the assistant's reply.
	Text string
	// Usage holds token counts for budget accounting and the chat log.
	Usage TokenUsage
}

// Completer sends a conversation to the remote model and returns its reply.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must bound each call (context deadline or client timeout) so a slow
// provider cannot hold a caller indefinitely.
type Completer interface {
	// Complete sends history plus the new user message and returns the
	// assistant's completion. The history is passed in chronological order
	// and already leads with the system seed when one is configured; the
	// implementation appends the new user message last.
	Complete(ctx context.Context, history []Message, userMessage string) (*Completion, error)
}
