// Package router mounts exchange apps and plain http.Handlers on an httprouter tree,
// with per-route middleware, timeouts, body limits, sub-routers and graceful shutdown.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/zap"
)

// RouterConfig defines the global configuration for the router.
// It includes settings for logging, timeouts, body limits, and middleware.
type RouterConfig struct {
	Logger            *zap.Logger                       // Logger for all router operations
	GlobalTimeout     time.Duration                     // Default response timeout for all routes
	GlobalMaxBodySize int64                             // Default maximum request body size in bytes
	SubRouters        []SubRouterConfig                 // Sub-routers with their own configurations
	Middlewares       []common.Middleware               // Global middlewares applied to all routes
	OnShutdown        []func(ctx context.Context) error // Run by Shutdown once in-flight requests finish
}

// SubRouterConfig defines configuration for a group of routes with a common path prefix.
// This allows for organizing routes into logical groups and applying shared configuration.
type SubRouterConfig struct {
	PathPrefix          string              // Common path prefix for all routes in this sub-router
	TimeoutOverride     time.Duration       // Override global timeout for all routes in this sub-router
	MaxBodySizeOverride int64               // Override global max body size for all routes in this sub-router
	Routes              []RouteConfig       // Routes in this sub-router
	Middlewares         []common.Middleware // Middlewares applied to all routes in this sub-router
}

// RouteConfig defines a single route.
// Exactly one of App and Handler should be set; App wins when both are.
type RouteConfig struct {
	Path        string              // Route path (will be prefixed with sub-router path prefix if applicable)
	Methods     []string            // HTTP methods this route handles
	App         exchange.App        // Frame-level app
	Handler     http.Handler        // Standard HTTP handler, served through the bridge
	Timeout     time.Duration       // Override timeout for this specific route
	MaxBodySize int64               // Override max body size for this specific route
	Middlewares []common.Middleware // Middlewares applied to this specific route
}

// Middleware is an alias for common.Middleware.
type Middleware = common.Middleware
