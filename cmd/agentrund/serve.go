package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taipm/agentrun/agent"
)

// Serve builds every dependency for cfg, brings the HTTP server up on
// cfg.HTTPAddr, and blocks until SIGINT/SIGTERM, then drains in-flight
// requests before releasing storage and notifier connections.
func Serve(cfg agent.ServiceConfig, logger agent.Logger) error {
	deps, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("agentrund: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error(context.Background(), "error closing dependencies", agent.F("error", err.Error()))
		}
	}()

	if err := deps.Manager.Initialize(context.Background()); err != nil {
		return fmt.Errorf("agentrund: initialize manager: %w", err)
	}

	router := NewRouter(deps)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "agentrund listening", agent.F("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("agentrund: server error: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
