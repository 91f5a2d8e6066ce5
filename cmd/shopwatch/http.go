package main

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopwatch/internal/api"
)

// handleHTTPServer starts the HTTP server on addr. It shuts down the server
// once ctx is cancelled; live streams see the same cancellation.
func handleHTTPServer(ctx context.Context, addr string, server *api.Server, wg *sync.WaitGroup, errc chan error, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: time.Second * 60,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	for _, m := range server.Mounts {
		logger.Debug("HTTP route mounted", zap.String("method", m.Method), zap.String("verb", m.Verb), zap.String("pattern", m.Pattern))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Info("HTTP server listening", zap.String("addr", addr))
			errc <- srv.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Info("shutting down HTTP server", zap.String("addr", addr))

		// Shutdown gracefully with a 30s timeout.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("failed to shutdown", zap.Error(err))
		}
	}()
}
