package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/avatarctic/cloud-storage-provider/configs"
	"github.com/avatarctic/cloud-storage-provider/internal/bootstrap"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/httpserver"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger := bootstrap.NewLogger(cfg.Log)
	logger.WithField("environment", cfg.Environment).Info("Starting cloud storage provider...")

	app, err := bootstrap.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application: ", err)
	}
	defer app.Close()

	logger.WithField("providers", app.Storage.Keys()).Info("Storage providers registered")

	// Create server configuration
	serverConfig := &httpserver.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		TLSCertFile:    cfg.Server.TLSCertFile,
		TLSKeyFile:     cfg.Server.TLSKeyFile,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Environment:    cfg.Server.Environment,
		HealthTimeout:  cfg.Health.RequestTimeout,
	}

	server := httpserver.NewServer(serverConfig, logger, httpserver.ServerDeps{
		HealthService: app.HealthService,
		Storage:       app.Storage,
		RateLimiter:   app.RateLimiter,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: ", err)
	}

	logger.Info("Server exited")
}
