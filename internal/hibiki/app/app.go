// Package app wires the Hibiki application together
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maunium.net/go/mautrix/event"

	"github.com/mvoisin/hibiki/common/trace"
	"github.com/mvoisin/hibiki/common/version"
	"github.com/mvoisin/hibiki/internal/hibiki/chat"
	"github.com/mvoisin/hibiki/internal/hibiki/commands"
	"github.com/mvoisin/hibiki/internal/hibiki/llm"
	"github.com/mvoisin/hibiki/internal/hibiki/matrix"
	"github.com/mvoisin/hibiki/internal/hibiki/memory"
	"github.com/mvoisin/hibiki/internal/hibiki/quota"
	"github.com/mvoisin/hibiki/internal/hibiki/store"
)

// Config holds application configuration
type Config struct {
	DatabasePath string
	Matrix       matrix.Config

	// SystemMessage seeds every user's conversation history. Empty means
	// no seed: the model sees only the exchanges themselves.
	SystemMessage string

	// DailyLimit is the maximum accepted chat requests per user per UTC
	// day. Defaults to quota.DefaultDailyLimit when zero.
	DailyLimit int

	// Model selects the remote completion model.
	Model string

	// ProviderEndpoint overrides the completion API base URL (Ollama,
	// Azure, any OpenAI-compatible endpoint). Empty means the public
	// OpenAI endpoint.
	ProviderEndpoint string

	// ProviderAPIKey is the bearer token for the completion API. Always
	// read from the environment, never from chat or the config file.
	ProviderAPIKey string

	// ProviderTimeout bounds each completion call. Defaults to 30 s when
	// zero.
	ProviderTimeout time.Duration

	// ProviderMaxTokens caps completion length. Zero lets the provider
	// decide.
	ProviderMaxTokens int

	// HTTPAddr is the TCP address for the optional liveness HTTP server
	// (e.g. ":8080"). When empty the server is disabled.
	HTTPAddr string

	// MaxMessageBytes is the chunk size for splitting long replies.
	// Defaults to commands.DefaultMaxMessageBytes when zero.
	MaxMessageBytes int
}

// App is the main Hibiki application
type App struct {
	config       *Config
	store        *store.Store
	matrix       *matrix.Client
	memory       *memory.Store
	chatService  *chat.Service
	router       *commands.Router
	healthServer *HealthServer
}

// New creates a new Hibiki application
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Inject the DB so the client can persist the sync token across restarts.
	matrixCfg := config.Matrix
	matrixCfg.DB = st.DB()
	slog.Info("connecting to Matrix", "homeserver", matrixCfg.Homeserver)
	matrixClient, err := matrix.New(&matrixCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize Matrix client: %w", err)
	}

	limiter := quota.New(config.DailyLimit)
	mem := memory.NewStore(config.SystemMessage)
	completer := llm.New(llm.Config{
		APIKey:    config.ProviderAPIKey,
		BaseURL:   config.ProviderEndpoint,
		Model:     config.Model,
		MaxTokens: config.ProviderMaxTokens,
		Timeout:   config.ProviderTimeout,
	})
	chatService := chat.NewService(limiter, mem, completer, st)
	slog.Info("chat service ready", "daily_limit", limiter.Limit(), "model", config.Model)

	router := commands.NewRouter("!")
	handlers := commands.NewHandlers(chatService)
	router.Register("chat", handlers.HandleChat)
	router.Register("reset", handlers.HandleReset)
	router.Register("usage", handlers.HandleUsage)
	router.Register("help", handlers.HandleHelp)
	router.Register("version", handlers.HandleVersion)
	router.Register("ping", handlers.HandlePing)

	app := &App{
		config:      config,
		store:       st,
		matrix:      matrixClient,
		memory:      mem,
		chatService: chatService,
		router:      router,
	}

	if config.HTTPAddr != "" {
		app.healthServer = NewHealthServer(config.HTTPAddr, &statusSource{memory: mem, store: st})
	}

	return app, nil
}

// Run starts the application and blocks until an interrupt signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMessage); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}

	for _, roomID := range a.config.Matrix.Rooms {
		a.matrix.SendNotice(roomID, "✅ Hibiki is online. Type !help for commands.")
	}

	slog.Info("Hibiki is running; press Ctrl+C to stop", "build", version.Info())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the application
func (a *App) Stop() {
	slog.Info("stopping Matrix client")
	a.matrix.Stop()

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}

// handleMessage processes incoming Matrix messages
func (a *App) handleMessage(ctx context.Context, evt *event.Event) {
	msgContent := evt.Content.AsMessage()
	if msgContent == nil {
		return
	}

	text := msgContent.Body
	roomID := evt.RoomID.String()

	// Correlate everything this message triggers, down to the chat log.
	ctx = trace.WithTraceID(ctx, trace.GenerateID())

	cmd, err := a.router.Parse(text)
	if err != nil {
		if errors.Is(err, commands.ErrNotACommand) {
			// Ordinary room chatter, not addressed to the bot.
			return
		}
		a.matrix.ReplyToMessage(roomID, evt.ID.String(), "Type !help for available commands.")
		return
	}

	// The model call can take many seconds; show a typing indicator so the
	// sender knows the bot heard them.
	if cmd.Name == "chat" {
		a.matrix.SetTyping(roomID, true, 30*time.Second)
		defer a.matrix.SetTyping(roomID, false, 0)
	}

	response, err := a.router.Route(ctx, text, evt)
	if err != nil {
		// A mistyped command name is user error, not a failure.
		if errors.Is(err, commands.ErrUnknownCommand) {
			a.matrix.ReplyToMessage(roomID, evt.ID.String(), "Type !help for available commands.")
			return
		}
		slog.Error("command failed", "command", cmd.Name, "sender", evt.Sender.String(), "err", err)
		a.matrix.ReplyToMessage(roomID, evt.ID.String(), commands.FallbackMessage)
		return
	}
	if response == "" {
		return
	}

	a.sendChunked(roomID, evt.ID.String(), response)
}

// sendChunked delivers a response, splitting long texts into multiple
// messages. The first chunk is sent as a reply to the triggering event so
// the thread reads naturally; follow-up chunks are plain messages.
func (a *App) sendChunked(roomID, eventID, response string) {
	chunks := commands.SplitMessage(response, a.config.MaxMessageBytes)
	for i, chunk := range chunks {
		var err error
		if i == 0 {
			err = a.matrix.ReplyToMessage(roomID, eventID, chunk)
		} else {
			err = a.matrix.SendText(roomID, chunk)
		}
		if err != nil {
			slog.Error("failed to send response chunk", "room", roomID, "chunk", i, "err", err)
			return
		}
	}
}
