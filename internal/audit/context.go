package audit

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "audit_request_id"
	requestMetaKey ctxKey = "audit_request_meta"
)

// RequestMeta carries transport-level context (client address, user agent)
// attached to every entry recorded under the request's context.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithRequestMeta attaches client transport metadata to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

// RequestIDFromContext returns the request identifier, if any.
func RequestIDFromContext(ctx context.Context) string {
	return requestIDFromContext(ctx)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func requestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	v, ok := ctx.Value(requestMetaKey).(RequestMeta)
	return v, ok
}
