// SPDX-License-Identifier: AGPL-3.0-or-later
package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/uran-qa/uran/internal/access"
	"github.com/uran-qa/uran/internal/domain"
	"github.com/uran-qa/uran/internal/server/authz"
	"github.com/uran-qa/uran/internal/server/metrics"
	"github.com/uran-qa/uran/internal/server/requestctx"
	"github.com/uran-qa/uran/internal/server/response"
)

// Middleware defines a HTTP middleware component.
type Middleware func(http.Handler) http.Handler

// chainMiddleware applies the supplied middlewares in order to the provided handler.
func chainMiddleware(h http.Handler, chain ...Middleware) http.Handler {
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] == nil {
			continue
		}
		h = chain[i](h)
	}
	return h
}

// loggingMiddleware records request metadata using slog.
func loggingMiddleware(cfg Config) Middleware {
	logger := newLogger(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			reqLogger := logger.With(
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			ctx := r.Context()
			meta := requestctx.MetadataFromContext(ctx)
			if meta == nil {
				meta = &requestctx.Metadata{}
				ctx = requestctx.WithMetadata(ctx, meta)
			}
			ctx = requestctx.WithLogger(ctx, reqLogger)
			next.ServeHTTP(recorder, r.WithContext(ctx))
			attrs := []any{
				slog.Int("status", recorder.status),
				slog.Duration("duration", time.Since(start)),
			}
			if meta.Route != "" {
				attrs = append(attrs, slog.String("route", meta.Route))
			}
			if meta.Principal != "" {
				attrs = append(attrs, slog.String("principal", meta.Principal))
			}
			reqLogger.Info("request", attrs...)
		})
	}
}

// corsMiddleware allows localhost origins in dev mode only.
func corsMiddleware(cfg Config) Middleware {
	if !cfg.Dev {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware resolves the bearer principal and gates /api routes on an
// active user. Project-scoped capability checks happen in the stores, where
// the project context is known; audit reads are additionally gated here.
func authMiddleware(cfg Config, accessSvc *access.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				if cfg.MetricsEnabled && !cfg.MetricsAllowUnauthenticated && r.URL.Path == "/metrics" {
					response.Write(w, response.New(http.StatusNotFound, "not found"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			principal, err := resolvePrincipal(r, cfg)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer realm=\"uran\"")
				response.Write(w, response.New(http.StatusUnauthorized, "unauthorized", response.WithDetail(err.Error())))
				return
			}

			action, gated := authz.RequiredAction(r.Method, r.URL.Path)
			scope := ""
			if action == access.ActionReadAudit {
				scope = r.URL.Query().Get("project_id")
			}
			rs, err := accessSvc.Resolve(r.Context(), principal, scope)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer realm=\"uran\"")
				response.Write(w, response.New(http.StatusUnauthorized, "unauthorized", response.WithDetail("unknown principal")))
				return
			}
			// Deny here only for actions decidable without project context;
			// everything else is re-checked with full scope in the stores.
			if gated && (action == access.ActionView || action == access.ActionReadAudit) && !rs.Allows(action) {
				metrics.Default.RecordAuthzDenial(string(action))
				response.Write(w, response.FromError(domain.Forbidden(string(action))))
				return
			}

			ctx := requestctx.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func metricsMiddleware(cfg Config) Middleware {
	if !cfg.MetricsEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := templateRoute(r.URL.Path)
			ctx := requestctx.WithRoute(r.Context(), route)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			duration := time.Since(start)
			metrics.Default.RecordHTTP(route, r.Method, recorder.status, duration)
		})
	}
}

func templateRoute(path string) string {
	switch {
	case path == "":
		return "/"
	case path == "/metrics", path == "/healthz", path == "/health/storage":
		return path
	case strings.HasPrefix(path, "/api/projects/"):
		if strings.Contains(path, "/members/") {
			return "/api/projects/{id}/members/{uid}"
		}
		if strings.HasSuffix(path, "/members") {
			return "/api/projects/{id}/members"
		}
		return "/api/projects/{id}"
	case strings.HasPrefix(path, "/api/testcases/"):
		switch {
		case strings.HasSuffix(path, "/versions"):
			return "/api/testcases/{id}/versions"
		case strings.HasSuffix(path, "/archive"):
			return "/api/testcases/{id}/archive"
		default:
			return "/api/testcases/{id}"
		}
	case strings.HasPrefix(path, "/api/fail-reasons/"):
		return "/api/fail-reasons/{code}"
	case strings.HasPrefix(path, "/api/assets/"):
		return "/api/assets/{id}"
	case strings.HasPrefix(path, "/api/templates/"):
		return "/api/templates/{id}"
	case strings.HasPrefix(path, "/api/runs/"):
		switch {
		case strings.HasSuffix(path, "/status"):
			return "/api/runs/{id}/status"
		case strings.HasSuffix(path, "/result"):
			return "/api/runs/{id}/items/{itemID}/result"
		case strings.Contains(path, "/items/"):
			return "/api/runs/{id}/items/{itemID}"
		case strings.HasSuffix(path, "/items"):
			return "/api/runs/{id}/items"
		default:
			return "/api/runs/{id}"
		}
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func newLogger(cfg Config) *slog.Logger {
	var handler slog.Handler
	switch strings.ToLower(cfg.Log) {
	case "json":
		handler = slog.NewJSONHandler(cfg.StdOut, nil)
	default:
		handler = slog.NewTextHandler(cfg.StdOut, nil)
	}
	return slog.New(handler)
}
