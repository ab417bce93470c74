package requestctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}
type metadataKey struct{}
type principalKey struct{}

var (
	ctxLoggerKey    = &loggerKey{}
	ctxMetadataKey  = &metadataKey{}
	ctxPrincipalKey = &principalKey{}
)

// Metadata stores auxiliary request attributes for structured logging.
// It is shared by pointer so inner middleware can annotate the request
// for the outer logging layer.
type Metadata struct {
	Route     string
	Principal string
}

// WithLogger stores the request-scoped logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxLoggerKey, logger)
}

// Logger extracts the request-scoped logger from context, if present.
func Logger(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(ctxLoggerKey).(*slog.Logger)
	return logger
}

// WithMetadata stores request metadata in context, overwriting any existing value.
func WithMetadata(ctx context.Context, meta *Metadata) context.Context {
	if meta == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxMetadataKey, meta)
}

// MetadataFromContext retrieves the metadata pointer stored on the context, if present.
func MetadataFromContext(ctx context.Context) *Metadata {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(ctxMetadataKey).(*Metadata)
	return meta
}

// WithRoute annotates metadata with the templated route string.
func WithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	meta := MetadataFromContext(ctx)
	if meta == nil {
		meta = &Metadata{}
		ctx = context.WithValue(ctx, ctxMetadataKey, meta)
	}
	meta.Route = route
	return ctx
}

// Route extracts the templated route string stored on the context, if any.
func Route(ctx context.Context) (string, bool) {
	meta := MetadataFromContext(ctx)
	if meta == nil || meta.Route == "" {
		return "", false
	}
	return meta.Route, true
}

// WithPrincipal stores the authenticated user identifier on the context
// and mirrors it into shared request metadata when present.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	if principal == "" {
		return ctx
	}
	if meta := MetadataFromContext(ctx); meta != nil {
		meta.Principal = principal
	}
	return context.WithValue(ctx, ctxPrincipalKey, principal)
}

// Principal retrieves the authenticated user identifier from context.
func Principal(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	principal, _ := ctx.Value(ctxPrincipalKey).(string)
	if principal == "" {
		return "", false
	}
	return principal, true
}
