package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mvoisin/hibiki/common/version"
	"github.com/mvoisin/hibiki/internal/hibiki/memory"
	"github.com/mvoisin/hibiki/internal/hibiki/store"
)

// HealthServer exposes /health and /status. It is optional; Hibiki runs
// without it when HTTPAddr is empty. Hosting platforms that expect an HTTP
// liveness probe point it at /health.
type HealthServer struct {
	addr      string
	stats     StatsProvider
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// StatsProvider is the minimal surface the status endpoint needs.
type StatsProvider interface {
	// Conversations is the number of users with conversation history.
	Conversations() int
	// ChatsServed is the total number of chat requests recorded, or an
	// error when the chat log is unavailable.
	ChatsServed(ctx context.Context) (int, error)
}

// statusSource adapts the memory store and chat log to StatsProvider.
type statusSource struct {
	memory *memory.Store
	store  *store.Store
}

func (s *statusSource) Conversations() int { return s.memory.Conversations() }

func (s *statusSource) ChatsServed(ctx context.Context) (int, error) {
	return s.store.ChatCount(ctx)
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit"`
	BuildTime     string    `json:"build_time"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSecs    float64   `json:"uptime_seconds"`
	Conversations int       `json:"conversations"`
	ChatsServed   int       `json:"chats_served"`
}

// NewHealthServer creates and configures the HTTP server (does not start it).
func NewHealthServer(addr string, stats StatsProvider) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		stats:     stats,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/status", hs.handleStatus)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without a
// live network listener (e.g. with httptest.NewRecorder).
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()

	// Shutdown when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

// handleHealth responds with a simple ok JSON payload.
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus responds with runtime statistics.
func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	conversations := 0
	chatsServed := 0
	if h.stats != nil {
		conversations = h.stats.Conversations()
		if n, err := h.stats.ChatsServed(r.Context()); err == nil {
			chatsServed = n
		}
	}

	resp := statusResponse{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.GitCommit,
		BuildTime:     version.BuildTime,
		StartedAt:     h.startedAt,
		UptimeSecs:    time.Since(h.startedAt).Seconds(),
		Conversations: conversations,
		ChatsServed:   chatsServed,
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
