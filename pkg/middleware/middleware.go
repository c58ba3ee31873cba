// Package middleware provides ready-made interceptors and app middlewares for SIntercept.
//
// Interceptors (Logging, TraceID, CORS, MaxBodySize, ClientIP, Authentication,
// RateLimit, Throttle, Metrics) are built on intercept.Base and can be combined
// with intercept.Chain. Recovery and Timeout wrap the app directly because they
// need to control the goroutine the app runs on.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"go.uber.org/zap"
)

// Use the Middleware type from the common package
type Middleware = common.Middleware

// Chain chains multiple middlewares together
func Chain(middlewares ...Middleware) Middleware {
	return func(next exchange.App) exchange.App {
		return common.NewMiddlewareChain(middlewares...).Then(next)
	}
}

// Recovery is a middleware that recovers from panics
func Recovery(logger *zap.Logger) Middleware {
	return func(next exchange.App) exchange.App {
		return exchange.AppFunc(func(ctx context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) (err error) {
			tracker := &startTracker{send: send}

			defer func() {
				if rec := recover(); rec != nil {
					// Log the panic
					logger.Error("Panic recovered",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("method", scope.Method),
						zap.String("path", scope.Path),
					)

					if scope.Type != exchange.ScopeHTTP || tracker.isStarted() {
						err = fmt.Errorf("panic: %v", rec)
						return
					}
					// Return a 500 Internal Server Error
					err = exchange.Error(500).Serve(ctx, scope, receive, send)
				}
			}()

			return next.Serve(ctx, scope, receive, tracker.track)
		})
	}
}

// Timeout is a middleware that sets a timeout for the request.
// If the app has not started a response when the deadline passes, a
// 408 Request Timeout is sent and later frames from the app are dropped.
func Timeout(timeout time.Duration, logger *zap.Logger) Middleware {
	return func(next exchange.App) exchange.App {
		return exchange.AppFunc(func(parent context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) error {
			if scope.Type != exchange.ScopeHTTP {
				return next.Serve(parent, scope, receive, send)
			}

			// Create a context with a timeout
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			// Guard the send function so the app cannot write after the timeout response
			var mu sync.Mutex
			started, timedOut := false, false
			guarded := func(ctx context.Context, msg exchange.Message) error {
				mu.Lock()
				defer mu.Unlock()
				if timedOut {
					return context.DeadlineExceeded
				}
				if msg.Type == exchange.MessageResponseStart {
					started = true
				}
				return send(ctx, msg)
			}

			done := make(chan error, 1)
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				done <- next.Serve(ctx, scope, receive, guarded)
			}()

			select {
			case err := <-done:
				// App finished normally
				return err
			case p := <-panicked:
				// Re-panic on the caller's goroutine so Recovery can see it
				panic(p)
			case <-ctx.Done():
				// Timeout occurred
				mu.Lock()
				defer mu.Unlock()
				timedOut = true

				logger.Error("Request timed out",
					zap.String("method", scope.Method),
					zap.String("path", scope.Path),
					zap.Duration("timeout", timeout),
					zap.String("client_ip", scope.RemoteAddr),
				)

				if started {
					return ctx.Err()
				}
				return exchange.Error(408).Serve(parent, scope, receive, send)
			}
		})
	}
}

// startTracker records whether a response start frame went through.
type startTracker struct {
	send    exchange.Send
	mu      sync.Mutex
	started bool
}

func (t *startTracker) track(ctx context.Context, msg exchange.Message) error {
	if msg.Type == exchange.MessageResponseStart {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
	}
	return t.send(ctx, msg)
}

func (t *startTracker) isStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// responseInfo is what interceptors learn about a response from its frames.
type responseInfo struct {
	mu     sync.Mutex
	start  time.Time
	status int
	bytes  int64
}

func newResponseInfo() *responseInfo {
	return &responseInfo{start: time.Now(), status: 200}
}

func (i *responseInfo) observe(msg exchange.Message) {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch msg.Type {
	case exchange.MessageResponseStart:
		if msg.Status != 0 {
			i.status = msg.Status
		}
	case exchange.MessageResponseBody:
		i.bytes += int64(len(msg.Body))
	}
}

func (i *responseInfo) snapshot() (status int, bytes int64, duration time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status, i.bytes, time.Since(i.start)
}

type loggingKey struct{}

// logging is the interceptor returned by Logging.
type logging struct {
	intercept.Base
	logger *zap.Logger
}

// Logging is an interceptor that logs requests once they complete.
// Server errors are logged at Error level, client errors and slow requests
// at Warn level, everything else at Debug level to avoid log spam.
func Logging(logger *zap.Logger) intercept.Interceptor {
	return &logging{logger: logger}
}

func (l *logging) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	req.Set(loggingKey{}, newResponseInfo())
	return intercept.Continue(), nil
}

func (l *logging) Send(ctx context.Context, req *intercept.Request, msg exchange.Message, next exchange.Send) error {
	if v, ok := req.Get(loggingKey{}); ok {
		v.(*responseInfo).observe(msg)
	}
	return next(ctx, msg)
}

func (l *logging) AfterRequest(_ context.Context, req *intercept.Request) error {
	v, ok := req.Get(loggingKey{})
	if !ok {
		return nil
	}
	status, bytes, duration := v.(*responseInfo).snapshot()

	fields := []zap.Field{
		zap.String("method", req.Method()),
		zap.String("path", req.Path()),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.Int64("bytes", bytes),
	}
	if traceID := GetTraceID(req); traceID != "" {
		fields = append([]zap.Field{zap.String("trace_id", traceID)}, fields...)
	}

	// Use appropriate log level based on status code and duration
	switch {
	case status >= 500:
		l.logger.Error("Server error", append(fields, zap.String("remote_addr", req.Scope().RemoteAddr))...)
	case status >= 400:
		l.logger.Warn("Client error", fields...)
	case duration > 1*time.Second:
		l.logger.Warn("Slow request", fields...)
	default:
		l.logger.Debug("Request", fields...)
	}
	return nil
}

// maxBodySize is the interceptor returned by MaxBodySize.
type maxBodySize struct {
	intercept.Base
	limit int64
}

// MaxBodySize is an interceptor that buffers the request body up to limit bytes
// and answers 413 Request Entity Too Large when it is exceeded.
// Requests that declare a larger Content-Length are rejected without reading.
func MaxBodySize(limit int64) intercept.Interceptor {
	return &maxBodySize{limit: limit}
}

func (m *maxBodySize) BeforeRequest(ctx context.Context, req *intercept.Request) (intercept.Result, error) {
	if cl := req.Header("content-length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > m.limit {
			return intercept.Override(exchange.Error(413)), nil
		}
	}

	req.SetMaxBodySize(m.limit)
	if _, err := req.Body(ctx); err != nil {
		if errors.Is(err, intercept.ErrBodyTooLarge) {
			return intercept.Override(exchange.Error(413)), nil
		}
		return intercept.Result{}, err
	}
	return intercept.Continue(), nil
}
