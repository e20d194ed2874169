// ABOUTME: Gateway orchestrator that wires the store, token protocol, operations and HTTP server
// ABOUTME: Serves the websocket transport, health endpoint and operator API on one listener

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

	"github.com/redis/go-redis/v9"

	"github.com/2389/gigs-gateway/internal/auth"
	"github.com/2389/gigs-gateway/internal/config"
	"github.com/2389/gigs-gateway/internal/dispatch"
	"github.com/2389/gigs-gateway/internal/operations"
	"github.com/2389/gigs-gateway/internal/store"
	"github.com/2389/gigs-gateway/internal/token"
	"github.com/2389/gigs-gateway/internal/transport"
)

// Gateway orchestrates the gigs-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	redis      *redis.Client
	pipeline   *dispatch.Pipeline
	httpServer *http.Server
	logger     *slog.Logger

	// baseCtx is the parent of every request context; cancelling it ends
	// websocket sessions, which http.Server.Shutdown does not track.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// initStore creates the SQLite store, honoring GIGS_DB_PATH over config.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("GIGS_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initCache wraps the store in the Redis identity cache when one is configured.
func initCache(cfg *config.Config, sqlStore *store.SQLiteStore, logger *slog.Logger) (store.Store, *redis.Client) {
	if !cfg.Cache.Enabled() {
		return sqlStore, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at startup, lookups fall through to sqlite", "addr", cfg.Cache.RedisAddr, "error", err)
	} else {
		logger.Info("identity cache enabled", "addr", cfg.Cache.RedisAddr, "ttl", cfg.Cache.TTL)
	}
	return store.NewCachedStore(sqlStore, rdb, cfg.Cache.TTL, logger), rdb
}

// New creates a new Gateway instance with all components wired.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	st, rdb := initCache(cfg, sqlStore, logger)

	tokens := token.New(st, logger,
		token.WithLookupTimeout(cfg.Auth.LookupTimeout),
		token.WithMaxAge(cfg.Auth.MaxTokenAge),
	)
	if cfg.Auth.MaxTokenAge > 0 {
		logger.Info("token freshness enforced", "max_age", cfg.Auth.MaxTokenAge)
	}

	registry, err := operations.New(st, tokens, logger).Registry()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building operation registry: %w", err)
	}
	logger.Debug("operations registered", "names", registry.Names())

	baseCtx, cancelBase := context.WithCancel(context.Background())
	gw := &Gateway{
		config:     cfg,
		store:      st,
		redis:      rdb,
		pipeline:   dispatch.NewPipeline(registry, tokens, logger),
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.Handle("GET /ws", transport.NewServer(gw.pipeline, logger, transport.Options{
		OriginPatterns: cfg.Server.AllowedOrigins,
	}))
	if err := gw.registerAdminRoutes(mux); err != nil {
		gw.cancelBase()
		st.Close()
		return nil, err
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gw.baseCtx },
	}

	return gw, nil
}

// Handler returns the HTTP handler serving every gateway route.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.Addr, err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until ctx is cancelled, then shuts down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, ends websocket sessions and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.cancelBase()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())
	if g.redis != nil {
		errs = appendCloseError(errs, "redis close", g.redis.Close())
	}

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// registerAdminRoutes mounts the operator API when auth.admin_secret is set.
func (g *Gateway) registerAdminRoutes(mux *http.ServeMux) error {
	if g.config.Auth.AdminSecret == "" {
		g.logger.Warn("admin API disabled - no auth.admin_secret configured")
		return nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(g.config.Auth.AdminSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	protect := func(h http.HandlerFunc) http.Handler {
		return auth.HTTPAuthMiddleware(verifier, g.logger)(auth.RequireAdminHTTP()(h))
	}
	mux.Handle("POST /admin/identities/{id}/revoke", protect(g.handleRevoke))
	g.logger.Info("admin API enabled at /admin/")
	return nil
}
