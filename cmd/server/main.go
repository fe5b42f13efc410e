// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iyunix/go-telemed/internal/config"
	"github.com/iyunix/go-telemed/internal/handlers"
	"github.com/iyunix/go-telemed/internal/middleware"
	"github.com/iyunix/go-telemed/internal/ratelimit"
	"github.com/iyunix/go-telemed/internal/services"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		services.NewZerologLogger(os.Stderr, "telemed-server", services.ParseLevel("error"), true).
			Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := services.NewZerologLogger(os.Stdout, "telemed-server", services.ParseLevel(cfg.LogLevel), !cfg.IsProduction())

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	deps, err := buildDependencies(startupCtx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.close(logger)

	hcfg := handlers.DefaultConfig()
	hcfg.JWTSecret = []byte(cfg.JWTSecretKey)
	hcfg.MaxJSONBytes = cfg.MaxJSONBytes
	hcfg.MaxImageBytes = cfg.MaxImageBytes

	limiter := ratelimit.New(ratelimit.DefaultLoginConfig())
	defer limiter.Close()

	h := handlers.New(deps.store, deps.blobs, deps.publisher, logger, hcfg)
	router := handlers.NewRouter(h, limiter, middleware.NewMetrics())

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Telemedicine backend starting",
		"port", cfg.ServerPort,
		"store", cfg.StoreDriver,
		"blobs", cfg.BlobDriver,
		"events", deps.eventsName,
		"env", cfg.Environment)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server startup failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		return
	}
	logger.Info("Server stopped")
}
