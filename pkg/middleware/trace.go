package middleware

import (
	"context"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"github.com/google/uuid"
)

// TraceIDHeader is the header carrying the trace ID on requests and responses.
const TraceIDHeader = "x-trace-id"

// traceIDKey is the per-request state key for the trace ID
type traceIDKey struct{}

type traceID struct {
	intercept.Base
}

// TraceID creates an interceptor that assigns a trace ID to each request.
// An incoming x-trace-id header is kept, otherwise a new UUID is generated.
// The ID is written into the request headers, so the inner app sees it, and
// echoed on the response.
func TraceID() intercept.Interceptor {
	return traceID{}
}

func (traceID) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	id := req.Header(TraceIDHeader)
	if id == "" {
		// Generate a unique trace ID
		id = uuid.New().String()
		req.UpdateHeader(TraceIDHeader, id)
	}
	req.Set(traceIDKey{}, id)
	return intercept.Continue(), nil
}

func (traceID) Send(ctx context.Context, req *intercept.Request, msg exchange.Message, next exchange.Send) error {
	if msg.Type == exchange.MessageResponseStart {
		if id := GetTraceID(req); id != "" {
			msg.Headers = msg.Headers.Clone()
			msg.Headers.Set(TraceIDHeader, id)
		}
	}
	return next(ctx, msg)
}

// GetTraceID returns the trace ID assigned to req.
// Returns an empty string if no trace ID is found.
func GetTraceID(req *intercept.Request) string {
	if id, ok := req.Get(traceIDKey{}); ok {
		return id.(string)
	}
	return ""
}

// GetTraceIDFromScope returns the trace ID an inner app received in its scope.
func GetTraceIDFromScope(scope *exchange.Scope) string {
	return scope.Headers.Get(TraceIDHeader)
}
