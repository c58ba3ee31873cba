// Package common provides common utilities and interfaces for the SIntercept library.
package common

import (
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
)

// MiddlewareChain represents a chain of middleware
type MiddlewareChain []Middleware

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(middlewares ...Middleware) MiddlewareChain {
	return middlewares
}

// Append adds middleware to the end of the chain
func (c MiddlewareChain) Append(middlewares ...Middleware) MiddlewareChain {
	result := make(MiddlewareChain, 0, len(c)+len(middlewares))
	result = append(result, c...)
	return append(result, middlewares...)
}

// Prepend adds middleware to the beginning of the chain
func (c MiddlewareChain) Prepend(middlewares ...Middleware) MiddlewareChain {
	result := make(MiddlewareChain, len(middlewares)+len(c))
	copy(result, middlewares)
	copy(result[len(middlewares):], c)
	return result
}

// Then applies the middleware chain to an app.
// The first middleware in the chain is the outermost one.
func (c MiddlewareChain) Then(app exchange.App) exchange.App {
	for i := len(c) - 1; i >= 0; i-- {
		app = c[i](app)
	}
	return app
}

// ThenFunc applies the middleware chain to an app function
func (c MiddlewareChain) ThenFunc(fn exchange.AppFunc) exchange.App {
	return c.Then(fn)
}
