// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// clientLimiters hands out one token bucket per client IP. Entries idle
// past the eviction window are dropped on the next sweep.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int

	lastSweep time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterEvictionWindow = 10 * time.Minute

func newClientLimiters(perMinute int) *clientLimiters {
	return &clientLimiters{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     perMinute,
		lastSweep: time.Now(),
	}
}

func (cl *clientLimiters) allow(ip string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.Sub(cl.lastSweep) > limiterEvictionWindow {
		for key, entry := range cl.limiters {
			if now.Sub(entry.lastSeen) > limiterEvictionWindow {
				delete(cl.limiters, key)
			}
		}
		cl.lastSweep = now
	}

	entry, ok := cl.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// RateLimitMiddleware rejects clients that exceed perMinute requests,
// in the backend's envelope shape.
func RateLimitMiddleware(perMinute int, logger *logging.Logger) gin.HandlerFunc {
	limiters := newClientLimiters(perMinute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiters.allow(ip) {
			logger.Warn("rate limit exceeded", "client", ip, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// MetricsMiddleware records request counts and durations.
func MetricsMiddleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()
		c.Next()

		metrics.Requests.WithLabelValues(
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		metrics.Duration.WithLabelValues(c.Request.Method).
			Observe(time.Since(start).Seconds())
		if c.Writer.Status() == http.StatusTooManyRequests {
			metrics.RateLimited.Inc()
		}
	}
}
