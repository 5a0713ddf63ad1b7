// Package server provides HTTP server initialization and lifecycle management
// for the local snapshot feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/config"
	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/pipeline"
	"github.com/scrypster/voxmemo/web/handlers"
)

// Feed is the part of the pipeline controller the server exposes.
type Feed interface {
	Subscribe() (<-chan pipeline.Snapshot, func())
	DeleteMemory(ctx context.Context, id string) error
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start listens on cfg.Addr() and serves the snapshot feed until ctx is done.
// It returns the actual address being listened on, which differs from the
// configured one when the port is 0.
func Start(ctx context.Context, cfg config.WebConfig, store handlers.MemoryReader, feed Feed, logger *zap.SugaredLogger) (string, error) {
	log := logging.OrNop(logger)

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}
	actualAddr := listener.Addr().String()
	hosts := handlers.LocalHosts(actualAddr)

	hub := handlers.NewSnapshotHub(hosts, log)
	go hub.Run()

	snapshots, unsubscribe := feed.Subscribe()
	go hub.Forward(ctx, snapshots)

	memoryHandlers := handlers.NewMemoryHandlers(store, feed, log)
	rateLimiter := handlers.NewRateLimiter(10.0, 20)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/memories", memoryHandlers.ListMemories)
	apiMux.HandleFunc("GET /api/memories/{id}", memoryHandlers.GetMemory)
	apiMux.HandleFunc("DELETE /api/memories/{id}", memoryHandlers.DeleteMemory)
	apiMux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	mux := http.NewServeMux()
	mux.Handle("/api/", handlers.RequireLocalOrigin(apiMux, hosts))
	// Origin validation happens inside the hub.
	mux.Handle("/ws", hub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)
	handler = handlers.LogRequests(handler, log)

	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("snapshot feed server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		unsubscribe()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("snapshot feed shutdown error", "error", err)
		}
		hub.Stop()
	}()

	log.Infow("snapshot feed listening", "addr", actualAddr)
	return actualAddr, nil
}
