// Package intercept provides the building block for request interception.
//
// An Interceptor hooks into the lifecycle of every HTTP request flowing through a
// Middleware: BeforeRequest runs first and may answer the request itself, the inner
// app (or the override) then produces the response while every outbound frame passes
// through Send, and AfterRequest runs once the response is complete.
//
// Interceptors embed Base and override the hooks they need:
//
//	type audit struct {
//		intercept.Base
//	}
//
//	func (audit) BeforeRequest(ctx context.Context, req *intercept.Request) (intercept.Result, error) {
//		params, err := req.BodyParams(ctx)
//		if err != nil {
//			return intercept.Override(exchange.Error(http.StatusBadRequest)), nil
//		}
//		...
//		return intercept.Continue(), nil
//	}
//
// AfterRequest cannot observe or change the response body. Use Send to rewrite
// response frames.
package intercept

import (
	"context"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Interceptor is the set of lifecycle hooks a Middleware calls.
type Interceptor interface {
	// BeforeRequest runs before the inner app. Returning Override(app) serves the
	// request with app instead. An error aborts the request and AfterRequest
	// does not run.
	BeforeRequest(ctx context.Context, req *Request) (Result, error)

	// AfterRequest runs once the response has been produced, on both the override
	// and the pass-through path, even when serving failed.
	AfterRequest(ctx context.Context, req *Request) error

	// Send receives every outbound frame. Implementations forward the (possibly
	// rewritten) frame to next.
	Send(ctx context.Context, req *Request, msg exchange.Message, next exchange.Send) error
}

// Base implements Interceptor with hooks that do nothing.
type Base struct{}

// BeforeRequest continues to the inner app.
func (Base) BeforeRequest(context.Context, *Request) (Result, error) {
	return Continue(), nil
}

// AfterRequest does nothing.
func (Base) AfterRequest(context.Context, *Request) error {
	return nil
}

// Send forwards msg unchanged.
func (Base) Send(ctx context.Context, _ *Request, msg exchange.Message, next exchange.Send) error {
	return next(ctx, msg)
}

// Result is the outcome of BeforeRequest: either continue to the inner app or
// override it with another app.
type Result struct {
	override exchange.App
}

// Continue lets the request through to the inner app.
func Continue() Result {
	return Result{}
}

// Override serves the request with app instead of the inner app.
// A nil app is the same as Continue.
func Override(app exchange.App) Result {
	return Result{override: app}
}

// Overridden reports whether the result replaces the inner app.
func (r Result) Overridden() bool {
	return r.override != nil
}

// App returns the overriding app, or nil.
func (r Result) App() exchange.App {
	return r.override
}

// Config configures a Middleware.
type Config struct {
	// Logger receives hook failures and override decisions. Defaults to zap.NewNop().
	Logger *zap.Logger

	// MaxBodySize caps how much of the request body Request.Body buffers.
	// Zero means no limit.
	MaxBodySize int64
}

// Middleware runs an Interceptor around an inner app.
// A Middleware holds no per-request state and is safe for concurrent use.
type Middleware struct {
	app         exchange.App
	interceptor Interceptor
	logger      *zap.Logger
	maxBodySize int64
}

// New wraps app with interceptor.
func New(app exchange.App, interceptor Interceptor, config Config) *Middleware {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		app:         app,
		interceptor: interceptor,
		logger:      logger,
		maxBodySize: config.MaxBodySize,
	}
}

// Wrap returns interceptor as a common.Middleware for use in a chain.
func Wrap(interceptor Interceptor, config Config) common.Middleware {
	return func(next exchange.App) exchange.App {
		return New(next, interceptor, config)
	}
}

// Serve implements exchange.App.
// Scopes other than HTTP go straight to the inner app without any hook firing.
func (m *Middleware) Serve(ctx context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) error {
	if scope.Type != exchange.ScopeHTTP {
		return m.app.Serve(ctx, scope, receive, send)
	}

	req := NewRequest(scope, receive, m.maxBodySize)
	wrappedSend := func(ctx context.Context, msg exchange.Message) error {
		return m.interceptor.Send(ctx, req, msg, send)
	}

	result, err := m.interceptor.BeforeRequest(ctx, req)
	if err != nil {
		m.logger.Error("Before-request hook failed",
			zap.String("method", scope.Method),
			zap.String("path", scope.Path),
			zap.Error(err),
		)
		return err
	}

	target := m.app
	if result.Overridden() {
		m.logger.Debug("Request overridden by interceptor",
			zap.String("method", scope.Method),
			zap.String("path", scope.Path),
		)
		target = result.App()
	}

	err = target.Serve(ctx, scope, req.Receive(), wrappedSend)

	if afterErr := m.interceptor.AfterRequest(ctx, req); afterErr != nil {
		m.logger.Error("After-request hook failed",
			zap.String("method", scope.Method),
			zap.String("path", scope.Path),
			zap.Error(afterErr),
		)
		err = multierr.Append(err, afterErr)
	}
	return err
}
