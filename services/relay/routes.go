// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// SetupRoutes installs the relay surface: health and metrics locally,
// everything under /api forwarded upstream.
func SetupRoutes(router *gin.Engine, backend *url.URL, cfg Config, metrics *Metrics, logger *logging.Logger) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	relay := NewRelayHandler(backend, logger)
	api := router.Group("/api")
	// Metrics first, so rejected requests are counted too.
	api.Use(MetricsMiddleware(metrics))
	api.Use(RateLimitMiddleware(cfg.RatePerMinute, logger))
	api.Any("/*path", relay)
}
