// ABOUTME: Gateway orchestrator that wires the store, pipeline, transports and assistant
// ABOUTME: Owns the HTTP server lifecycle and the background sweep loops

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/2389/switchboard/internal/assistant"
	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/dedupe"
	"github.com/2389/switchboard/internal/handoff"
	"github.com/2389/switchboard/internal/notify"
	"github.com/2389/switchboard/internal/polling"
	"github.com/2389/switchboard/internal/router"
	"github.com/2389/switchboard/internal/store"
)

const (
	dedupeTTL  = 10 * time.Minute
	dedupeSize = 10000
)

// Suggester drafts candidate replies for a representative.
type Suggester interface {
	Suggest(ctx context.Context, history []assistant.Turn) ([]assistant.Suggestion, error)
}

// Deps are the externally backed components of a Gateway. New builds them
// from configuration; tests supply their own.
type Deps struct {
	Store store.Store
	// Generator answers automated conversations. Nil escalates instead.
	Generator handoff.Generator
	// Suggester backs the suggestions endpoint. Nil disables it.
	Suggester Suggester
	// Notifier alerts staff. Nil disables notifications.
	Notifier conversation.Notifier
}

// Gateway serves the live and polling transports and the staff API.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *conversation.Registry
	service    *conversation.Service
	handoff    *handoff.Controller
	router     *router.Router
	polling    *polling.Bridge
	dedupe     *dedupe.Cache
	resolver   *auth.Resolver
	suggester  Suggester
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore opens the SQLite store, honoring SWITCHBOARD_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SWITCHBOARD_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := notify.FromConfig(cfg.Notify, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("configuring notifications: %w", err)
	}

	deps := Deps{Store: s}
	if notifier.Len() > 0 {
		deps.Notifier = notifier
	}
	if cfg.Assistant.Enabled() {
		client := assistant.New(cfg.Assistant, logger)
		deps.Generator = client
		deps.Suggester = client
		logger.Info("assistant enabled", "model", cfg.Assistant.Model, "auto_handoff", cfg.Assistant.HandoffEnabled())
	} else {
		logger.Warn("assistant not configured, automated conversations escalate to representatives")
	}

	gw, err := NewWithDeps(cfg, deps, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithDeps creates a Gateway around the given components.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		return nil, errors.New("gateway requires a store")
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	} else {
		logger.Warn("auth.jwt_secret not set, representative identity claims are trusted without verification")
	}
	resolver := auth.NewResolver(deps.Store, verifier)

	registry := conversation.NewRegistry(cfg.Realtime.HeartbeatInterval, logger)
	svc := conversation.New(deps.Store, registry, deps.Notifier, logger)
	if cfg.Notify.Timeout > 0 {
		svc.SetNotifyTimeout(cfg.Notify.Timeout)
	}

	ctrl := handoff.New(deps.Store, svc, deps.Generator, handoff.Options{
		SystemPrompt: cfg.Assistant.SystemPrompt,
		MaxTokens:    cfg.Assistant.MaxTokens,
		Temperature:  cfg.Assistant.Temperature,
		HistoryTurns: cfg.Assistant.HistoryTurns,
		AutoHandoff:  cfg.Assistant.HandoffEnabled(),
	}, logger)
	svc.SetEvaluator(ctrl)

	cache := dedupe.New(dedupeTTL, dedupeSize)

	gw := &Gateway{
		config:    cfg,
		store:     deps.Store,
		registry:  registry,
		service:   svc,
		handoff:   ctrl,
		router:    router.New(deps.Store, svc, registry, resolver, cfg.Realtime.MaxMessageLength, logger),
		dedupe:    cache,
		resolver:  resolver,
		suggester: deps.Suggester,
		logger:    logger.With("component", "gateway"),
		polling: polling.New(deps.Store, svc, cache, polling.Options{
			MaxWait:          cfg.Polling.MaxWait,
			DefaultWait:      cfg.Polling.DefaultWait,
			CheckInterval:    cfg.Polling.CheckInterval,
			SessionIdle:      cfg.Polling.SessionIdle,
			MaxMessageLength: cfg.Realtime.MaxMessageLength,
		}, logger),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return gw, nil
}

// Handler returns the HTTP routes served by the gateway.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.HandleFunc("GET /ws", g.handleWebSocket)

	optional := auth.OptionalAuthMiddleware(g.resolver)
	mux.HandleFunc("GET /api/polling/messages/{conversationId}", g.handlePollMessages)
	mux.Handle("POST /api/polling/send/{conversationId}", optional(http.HandlerFunc(g.handlePollSend)))
	mux.HandleFunc("GET /api/polling/status", g.handlePollStatus)

	mux.HandleFunc("POST /api/conversations", g.handleCreateConversation)

	staff := auth.HTTPAuthMiddleware(g.resolver)
	mux.Handle("GET /api/conversations", staff(http.HandlerFunc(g.handleListConversations)))
	mux.Handle("GET /api/conversations/{id}", staff(http.HandlerFunc(g.handleGetConversation)))
	mux.Handle("GET /api/conversations/{id}/messages", staff(http.HandlerFunc(g.handleConversationMessages)))
	mux.Handle("POST /api/conversations/{id}/takeover", staff(http.HandlerFunc(g.handleTakeover)))
	mux.Handle("PATCH /api/conversations/{id}", staff(http.HandlerFunc(g.handleUpdateConversation)))
	mux.Handle("POST /api/conversations/{id}/suggestions", staff(http.HandlerFunc(g.handleSuggestions)))
	mux.Handle("GET /api/stats", staff(http.HandlerFunc(g.handleStats)))
	mux.Handle("GET /api/representatives", staff(http.HandlerFunc(g.handleListRepresentatives)))
	mux.Handle("PATCH /api/representatives/{id}/status", staff(http.HandlerFunc(g.handleRepresentativeStatus)))

	return mux
}

// Run serves HTTP and runs the liveness and session sweeps until ctx is
// cancelled or the server fails, then shuts everything down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		g.registry.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		g.polling.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return g.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Shutdown stops accepting requests, closes live connections, waits for
// background notification and assistant work, then closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	g.registry.Close()
	if err := g.service.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for background work: %w", err))
	}
	g.dedupe.Close()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListConversations(r.Context(), 1); err != nil {
		g.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d live connections)", g.registry.Count())
}
