package router

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Suhaibinator/SIntercept/pkg/bridge"
	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/middleware"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Router is the main router struct that implements http.Handler.
// It provides routing, middleware support, graceful shutdown, and other features.
type Router struct {
	config      RouterConfig
	router      *httprouter.Router
	logger      *zap.Logger
	middlewares []common.Middleware
	wg          sync.WaitGroup
	shutdown    bool
	shutdownMu  sync.RWMutex
}

// paramsKey is the context key for httprouter.Params between the route handle
// and the app chain.
type paramsKey struct{}

// NewRouter creates a new Router with the given configuration.
// It initializes the underlying httprouter, sets up logging, and registers routes from sub-routers.
func NewRouter(config RouterConfig) *Router {
	// Set up the logger
	logger := config.Logger
	if logger == nil {
		// Create a default logger if none is provided
		var err error
		logger, err = zap.NewProduction()
		if err != nil {
			// Fallback to a no-op logger if we can't create a production logger
			logger = zap.NewNop()
		}
	}

	r := &Router{
		config:      config,
		router:      httprouter.New(),
		logger:      logger,
		middlewares: config.Middlewares,
	}

	// Register routes from sub-routers
	for _, sr := range config.SubRouters {
		r.registerSubRouter(sr)
	}

	return r
}

// registerSubRouter registers all routes in a sub-router.
// It applies the sub-router's path prefix to all routes and registers them with the router.
func (r *Router) registerSubRouter(sr SubRouterConfig) {
	for _, route := range sr.Routes {
		timeout := r.getEffectiveTimeout(route.Timeout, sr.TimeoutOverride)
		maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, sr.MaxBodySizeOverride)

		middlewares := common.NewMiddlewareChain(sr.Middlewares...).Append(route.Middlewares...)
		r.handle(sr.PathPrefix+route.Path, route, timeout, maxBodySize, middlewares)
	}
}

// RegisterRoute registers a route with the router.
// It panics if the route has neither an App nor a Handler, or if httprouter
// rejects the path.
func (r *Router) RegisterRoute(route RouteConfig) {
	timeout := r.getEffectiveTimeout(route.Timeout, 0)
	maxBodySize := r.getEffectiveMaxBodySize(route.MaxBodySize, 0)
	r.handle(route.Path, route, timeout, maxBodySize, route.Middlewares)
}

func (r *Router) handle(path string, route RouteConfig, timeout time.Duration, maxBodySize int64, middlewares []Middleware) {
	app := route.App
	if app == nil {
		if route.Handler == nil {
			panic(fmt.Sprintf("router: route %s has no App or Handler", path))
		}
		app = bridge.Wrap(route.Handler)
	}

	h := bridge.NewHandler(r.wrapApp(app, timeout, middlewares), r.logger)
	for _, method := range route.Methods {
		r.router.Handle(method, path, r.convertToHTTPRouterHandle(h, maxBodySize))
	}
}

// convertToHTTPRouterHandle converts an http.Handler to an httprouter.Handle.
// It tracks the request for Shutdown, applies the body limit and stores the
// route parameters in the request context for the app chain.
func (r *Router) convertToHTTPRouterHandle(handler http.Handler, maxBodySize int64) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		// First add to the wait group before checking shutdown status
		r.wg.Add(1)

		r.shutdownMu.RLock()
		isShutdown := r.shutdown
		r.shutdownMu.RUnlock()

		if isShutdown {
			r.wg.Done()
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		defer r.wg.Done()

		// Apply body size limit
		if maxBodySize > 0 {
			req.Body = http.MaxBytesReader(w, req.Body, maxBodySize)
		}

		ctx := context.WithValue(req.Context(), paramsKey{}, ps)
		handler.ServeHTTP(w, req.WithContext(ctx))
	}
}

// wrapApp wraps an app with all the necessary middleware.
// Recovery is always outermost, then global, sub-router and route middlewares,
// then the timeout closest to the app.
func (r *Router) wrapApp(app exchange.App, timeout time.Duration, middlewares []Middleware) exchange.App {
	chain := common.NewMiddlewareChain(r.middlewares...).
		Append(middlewares...).
		Prepend(middleware.Recovery(r.logger), withParams)

	if timeout > 0 {
		chain = chain.Append(middleware.Timeout(timeout, r.logger))
	}
	return chain.Then(app)
}

// withParams copies route parameters from the context into the scope.
func withParams(next exchange.App) exchange.App {
	return exchange.AppFunc(func(ctx context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) error {
		if ps, ok := ctx.Value(paramsKey{}).(httprouter.Params); ok && len(ps) > 0 {
			scope.Params = make(map[string]string, len(ps))
			for _, p := range ps {
				scope.Params[p.Key] = p.Value
			}
		}
		return next.Serve(ctx, scope, receive, send)
	})
}

// ServeHTTP implements the http.Handler interface.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

// Shutdown gracefully shuts down the router.
// It stops accepting new requests, waits for existing requests to complete and
// then runs the OnShutdown hooks. If the context is canceled before all
// requests complete, the hooks still run and the context's error is returned
// together with any hook errors.
func (r *Router) Shutdown(ctx context.Context) error {
	// Mark the router as shutting down
	r.shutdownMu.Lock()
	r.shutdown = true
	r.shutdownMu.Unlock()

	// Create a channel to signal when all requests are done
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	for _, hook := range r.config.OnShutdown {
		err = multierr.Append(err, hook(ctx))
	}
	if err != nil {
		r.logger.Error("Shutdown incomplete", zap.Error(err))
	}
	return err
}

// GetParam returns a route parameter from the scope.
func GetParam(scope *exchange.Scope, name string) string {
	return scope.Param(name)
}

// getEffectiveTimeout returns the effective timeout for a route.
// It considers route-specific, sub-router, and global timeout settings in that order of precedence.
func (r *Router) getEffectiveTimeout(routeTimeout, subRouterTimeout time.Duration) time.Duration {
	if routeTimeout > 0 {
		return routeTimeout
	}
	if subRouterTimeout > 0 {
		return subRouterTimeout
	}
	return r.config.GlobalTimeout
}

// getEffectiveMaxBodySize returns the effective max body size for a route.
// It considers route-specific, sub-router, and global max body size settings in that order of precedence.
func (r *Router) getEffectiveMaxBodySize(routeMaxBodySize, subRouterMaxBodySize int64) int64 {
	if routeMaxBodySize > 0 {
		return routeMaxBodySize
	}
	if subRouterMaxBodySize > 0 {
		return subRouterMaxBodySize
	}
	return r.config.GlobalMaxBodySize
}
