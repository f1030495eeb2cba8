// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// hopHeaders are connection-scoped and must not be forwarded in either
// direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewRelayHandler forwards the incoming request to the backend,
// preserving method, path, query, headers, and body, and streams the
// response back chunk by chunk so SSE passes through unbuffered.
func NewRelayHandler(backend *url.URL, logger *logging.Logger) gin.HandlerFunc {
	// No client timeout: chat streams are long-lived. Lifetime is
	// bounded by the caller's request context.
	client := &http.Client{}

	return func(c *gin.Context) {
		target := *backend
		target.Path = strings.TrimRight(backend.Path, "/") + c.Request.URL.Path
		target.RawQuery = c.Request.URL.RawQuery

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target.String(), c.Request.Body)
		if err != nil {
			upstreamError(c, logger, err)
			return
		}
		copyHeaders(req.Header, c.Request.Header)

		resp, err := client.Do(req)
		if err != nil {
			upstreamError(c, logger, err)
			return
		}
		defer resp.Body.Close()

		copyHeaders(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)

		// Flush per chunk: an SSE event must reach the client the
		// moment the backend emits it.
		buf := make([]byte, 4096)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				if _, werr := c.Writer.Write(buf[:n]); werr != nil {
					logger.Debug("client went away mid-stream", "error", werr)
					return
				}
				c.Writer.Flush()
			}
			if rerr == io.EOF {
				return
			}
			if rerr != nil {
				logger.Warn("upstream stream ended abnormally", "error", rerr)
				return
			}
		}
	}
}

// copyHeaders copies all non-hop-by-hop headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// upstreamError answers in the backend's envelope shape so clients
// need only one error-decoding path.
func upstreamError(c *gin.Context, logger *logging.Logger, err error) {
	logger.Error("upstream request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "upstream request failed",
	})
}
