// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The relay sits between Genial clients and the backend. It forwards
// API requests verbatim — streaming responses included — and adds the
// boundary concerns the backend should not carry: per-client rate
// limiting, request metrics, and a health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// Config is read from the environment at startup.
type Config struct {
	// BackendURL is the upstream Genial backend root.
	BackendURL string `validate:"required,url"`
	// Port the relay listens on.
	Port int `validate:"min=1,max=65535"`
	// RatePerMinute caps requests per client IP.
	RatePerMinute int `validate:"min=1"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// LoadConfig reads and validates GENIAL_* environment variables.
func LoadConfig() (Config, error) {
	cfg := Config{
		BackendURL:    os.Getenv("GENIAL_BACKEND_URL"),
		Port:          8080,
		RatePerMinute: 60,
		LogLevel:      os.Getenv("GENIAL_LOG_LEVEL"),
	}
	if v := os.Getenv("GENIAL_RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("GENIAL_RELAY_PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("GENIAL_RATE_PER_MINUTE"); v != "" {
		rpm, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("GENIAL_RATE_PER_MINUTE: %w", err)
		}
		cfg.RatePerMinute = rpm
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid relay config: %w", err)
	}
	return cfg, nil
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "relay",
		JSON:    true,
	})
	defer logger.Close()

	backend, err := url.Parse(cfg.BackendURL)
	if err != nil {
		logger.Error("invalid backend URL", "url", cfg.BackendURL, "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	metrics := NewMetrics()
	SetupRoutes(router, backend, cfg, metrics, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay listening", "port", cfg.Port, "backend", backend.String())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay terminated", "error", err)
		os.Exit(1)
	}
}
