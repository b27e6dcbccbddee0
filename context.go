package domainwatch

import (
	"context"
	"net/http"
	"time"

	"github.com/domainwatch/domainwatch/router"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the request ID (uuid.UUID), also sent back in the X-Request-ID header
	RequestIDKey contextKey = "RequestID"
	// RouteMatchKey is the context key for the matched route (router.Match)
	RouteMatchKey contextKey = "RouteMatch"
	// RequestTimeKey is the context key for the time the request was received (time.Time)
	RequestTimeKey contextKey = "RequestTime"
)

// ContextWithRequestID returns a new request with a request ID in the context
func ContextWithRequestID(req *http.Request, requestID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestID)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the request ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithRouteMatch returns a new request with the matched route in the context
func ContextWithRouteMatch(req *http.Request, match router.Match) *http.Request {
	ctx := context.WithValue(req.Context(), RouteMatchKey, match)
	return req.WithContext(ctx)
}

// RouteMatchFromContext returns the matched route from the context if it exists
func RouteMatchFromContext(ctx context.Context) (router.Match, bool) {
	match, ok := ctx.Value(RouteMatchKey).(router.Match)
	return match, ok
}

// ContextWithRequestTime returns a new request with the request time in the context
func ContextWithRequestTime(req *http.Request, requestTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), RequestTimeKey, requestTime)
	return req.WithContext(ctx)
}

// RequestTimeFromContext returns the request time from the context if it exists
func RequestTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(RequestTimeKey).(time.Time)
	return timestamp, ok
}
