// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Interceptor wraps the HTTP round trip of every call made by a [Transport].
type Interceptor func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error)

// Invoker is the next step in the interceptor chain.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// chainInterceptors builds the chain from right to left so that interceptors[0] runs first.
func chainInterceptors(interceptors []Interceptor, invoker Invoker) Invoker {
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		next := invoker
		invoker = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return interceptor(ctx, req, next)
		}
	}
	return invoker
}

// UserAgentInterceptor sets the User-Agent header.
func UserAgentInterceptor(userAgent string) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		req.Header.Set("User-Agent", userAgent)
		return invoker(ctx, req)
	}
}

// HeaderInterceptor adds static headers to every request. Headers already set by the call win.
func HeaderInterceptor(headers http.Header) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		for k, vs := range headers {
			if req.Header.Get(k) != "" {
				continue
			}
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return invoker(ctx, req)
	}
}

// LoggingInterceptor logs every round trip at debug level. Header values are never logged.
func LoggingInterceptor(logger *slog.Logger) Interceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		start := time.Now()
		resp, err := invoker(ctx, req)
		if err != nil {
			logger.DebugContext(ctx, "a2a request failed",
				slog.String("method", req.Method),
				slog.String("url", req.URL.String()),
				slog.Duration("elapsed", time.Since(start)),
				slog.Any("error", err),
			)
			return resp, err
		}
		logger.DebugContext(ctx, "a2a request",
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
			slog.Int("status", resp.StatusCode),
			slog.String("content_type", resp.Header.Get("Content-Type")),
			slog.Duration("elapsed", time.Since(start)),
		)
		return resp, nil
	}
}
