package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vk/jform/internal/ctxlog"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// startServer listens on port and serves the API in the background. It
// returns the bound address, which differs from the port when port is 0.
func (a *App) startServer(port int) (string, error) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring API server.")

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	addr := ln.Addr().String()
	go func() {
		logger.Info("API server starting", "address", addr)
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("API server failed unexpectedly", "error", err)
		}
	}()
	return addr, nil
}

func (a *App) closeServer() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Closing API server...")

	if a.httpServer == nil {
		logger.Debug("API server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), 5*time.Second)
	defer cancel()

	logger.Info("Shutting down API server...")
	err := a.httpServer.Shutdown(ctx)
	a.httpServer = nil
	if err != nil {
		logger.Error("API server shutdown failed", "error", err)
		return err
	}
	logger.Debug("API server shut down gracefully.")
	return nil
}
