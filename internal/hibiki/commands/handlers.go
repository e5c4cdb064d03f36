package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"maunium.net/go/mautrix/event"

	"github.com/mvoisin/hibiki/common/trace"
	"github.com/mvoisin/hibiki/common/version"
	"github.com/mvoisin/hibiki/internal/hibiki/chat"
)

// FallbackMessage is shown for any chat failure other than the daily limit.
// Deliberately generic: provider detail stays in the logs.
const FallbackMessage = "Oops! Something went wrong."

// LimitMessage renders the quota-rejection reply.
func LimitMessage(limit int) string {
	return fmt.Sprintf("Reached the daily limit of %d uses", limit)
}

// ChatService is the orchestrator surface the handlers need.
// *chat.Service satisfies it; tests use a stub.
type ChatService interface {
	Chat(ctx context.Context, userID, message string) (string, error)
	Reset(ctx context.Context, userID string) error
	Remaining(userID string) int
	DailyLimit() int
}

// Handlers holds all command handlers and dependencies
type Handlers struct {
	svc ChatService
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc ChatService) *Handlers {
	return &Handlers{svc: svc}
}

// HandleChat forwards the user's message to the model and returns the reply.
// Quota rejections and provider failures are translated into their fixed
// user-facing strings here; the error return is reserved for cases the
// dispatcher should treat as delivery problems.
func (h *Handlers) HandleChat(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	if cmd.Rest == "" {
		return "Usage: !chat <message>", nil
	}

	userID := evt.Sender.String()
	reply, err := h.svc.Chat(ctx, userID, cmd.Rest)
	if err != nil {
		if errors.Is(err, chat.ErrLimitReached) {
			return LimitMessage(h.svc.DailyLimit()), nil
		}
		slog.Error("chat command failed", "user", userID, "err", err)
		return FallbackMessage, nil
	}
	return reply, nil
}

// HandleReset clears the sender's conversation history.
func (h *Handlers) HandleReset(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	userID := evt.Sender.String()
	if err := h.svc.Reset(ctx, userID); err != nil {
		slog.Error("reset command failed", "user", userID, "err", err)
		return FallbackMessage, nil
	}
	return fmt.Sprintf("Reset conversation history for %s", userID), nil
}

// HandleUsage reports the sender's remaining quota for today.
func (h *Handlers) HandleUsage(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	userID := evt.Sender.String()
	return fmt.Sprintf("You have %d of %d daily uses remaining",
		h.svc.Remaining(userID), h.svc.DailyLimit()), nil
}

// HandleHelp shows available commands
func (h *Handlers) HandleHelp(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	help := `**Hibiki**

• !chat <message> - Have a chat with the assistant
• !reset - Reset your conversation history
• !usage - Show your remaining daily uses
• !help - Show this help message
• !version - Show version information
• !ping - Health check
`
	return help, nil
}

// HandleVersion shows version information
func (h *Handlers) HandleVersion(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return fmt.Sprintf("**Hibiki**\nVersion: %s\nCommit: %s\nBuild Time: %s",
		version.Version, version.GitCommit, version.BuildTime), nil
}

// HandlePing responds with a health check
func (h *Handlers) HandlePing(ctx context.Context, cmd *Command, evt *event.Event) (string, error) {
	return fmt.Sprintf("🏓 Pong! (trace: %s)", trace.GenerateID()), nil
}
