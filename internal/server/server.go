// Package server wires the HTTP surface together and owns its lifecycle:
// the WebSocket interaction endpoint, the REST API, and the background
// janitors for expired media and memories.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/robilabs/robi/internal/config"
	"github.com/robilabs/robi/internal/media"
	"github.com/robilabs/robi/internal/session"
	"github.com/robilabs/robi/internal/storage"
	"github.com/robilabs/robi/web/handlers"
)

// memoryPurgeInterval is how often expired memories are hard-deleted.
const memoryPurgeInterval = time.Hour

// Server bundles the HTTP server with its background workers.
type Server struct {
	cfg    *config.Config
	store  storage.Store
	engine *session.Engine
	media  *media.Store
	tasks  *session.TaskRunner
	logger *zap.Logger

	breaker handlers.CircuitReporter

	mu   sync.Mutex
	addr string
}

// New assembles a server. The breaker may be nil when the LLM provider is
// not wrapped in one.
func New(cfg *config.Config, store storage.Store, engine *session.Engine, mediaStore *media.Store, tasks *session.TaskRunner, breaker handlers.CircuitReporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		media:   mediaStore,
		tasks:   tasks,
		logger:  logger,
		breaker: breaker,
	}
}

// Addr returns the address the server is listening on, or empty before Run
// has bound its listener. Useful with port 0 in tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until the context is cancelled, then shuts down gracefully and
// drains in-flight background tasks.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	interact := handlers.NewInteractHandler(s.cfg, s.engine, s.logger)
	mux.Handle("/ws/interact", interact)

	health := handlers.NewHealthHandler(s.store, s.breaker)
	restore := handlers.NewRestoreHandler(s.store, s.logger)

	// Health is probe-friendly and stays open; everything else on /api
	// requires the shared key.
	mux.HandleFunc("/api/health", health.GetHealth)

	api := http.NewServeMux()
	api.HandleFunc("/api/restore", restore.GetRestore)
	mux.Handle("/api/restore", handlers.RequireAuth(api, s.cfg))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	httpServer := &http.Server{
		Handler:     securityHeaders(mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: WebSocket sessions are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()
	s.logger.Info("server listening", zap.String("addr", s.Addr()))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if s.media != nil {
		g.Go(func() error {
			s.media.RunCleanup(s.cfg.Media.CleanupInterval, ctx.Done())
			return nil
		})
	}

	g.Go(func() error {
		return s.purgeExpiredMemories(ctx)
	})

	err = g.Wait()
	if s.tasks != nil {
		s.tasks.Wait()
	}
	return err
}

// purgeExpiredMemories hard-deletes expired memories on a fixed interval.
func (s *Server) purgeExpiredMemories(ctx context.Context) error {
	ticker := time.NewTicker(memoryPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := s.store.PurgeExpired(ctx, now)
			if err != nil {
				s.logger.Warn("memory purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired memories", zap.Int("count", n))
			}
		}
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
