package config

import (
	"time"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"github.com/Suhaibinator/SIntercept/pkg/metrics"
	"github.com/Suhaibinator/SIntercept/pkg/middleware"
	"go.uber.org/zap"
)

// Chain builds the middleware chain described by the configuration: one
// intercepting layer running the enabled interceptors in a fixed order, then
// the request timeout. Panic recovery is left to the host; the router adds it
// to every route, other hosts should prepend middleware.Recovery.
// m may be nil, in which case metrics are not recorded even when enabled.
func (c *Config) Chain(logger *zap.Logger, m *metrics.Metrics) common.MiddlewareChain {
	if logger == nil {
		logger = zap.NewNop()
	}

	var chain common.MiddlewareChain

	interceptors := c.Interceptors(logger, m)
	if len(interceptors) > 0 {
		chain = chain.Append(intercept.Wrap(intercept.Chain(interceptors...), intercept.Config{
			Logger:      logger,
			MaxBodySize: c.Server.BodyMaxBytes,
		}))
	}

	if timeout := c.Server.Timeout(); timeout > 0 {
		chain = chain.Append(middleware.Timeout(timeout, logger))
	}
	return chain
}

// Interceptors returns the enabled interceptors in the order they run.
func (c *Config) Interceptors(logger *zap.Logger, m *metrics.Metrics) []intercept.Interceptor {
	var out []intercept.Interceptor

	if c.Trace.Enabled {
		out = append(out, middleware.TraceID())
	}

	ipConfig := &middleware.IPConfig{
		Source:       middleware.IPSourceType(c.ClientIP.Source),
		CustomHeader: c.ClientIP.CustomHeader,
		TrustProxy:   c.ClientIP.TrustProxy,
	}
	out = append(out, middleware.ClientIP(ipConfig), middleware.Logging(logger))

	if c.Metrics.Enabled && m != nil {
		out = append(out, middleware.Metrics(m))
	}

	if c.CORS.Enabled {
		out = append(out, middleware.CORS(middleware.CORSConfig{
			AllowOrigins:     c.CORS.AllowOrigins,
			AllowMethods:     c.CORS.AllowMethods,
			AllowHeaders:     c.CORS.AllowHeaders,
			ExposeHeaders:    c.CORS.ExposeHeaders,
			AllowCredentials: c.CORS.AllowCredentials,
			MaxAge:           c.CORS.MaxAgeSeconds,
		}))
	}

	if c.RateLimit.Enabled {
		out = append(out, middleware.RateLimit(&middleware.RateLimitConfig{
			BucketName: c.RateLimit.Bucket,
			Limit:      c.RateLimit.Limit,
			Window:     time.Duration(c.RateLimit.WindowSeconds) * time.Second,
			Strategy:   middleware.StrategyIP,
		}, middleware.NewTokenBucketLimiter(), logger))
	}

	if c.Throttle.Enabled {
		out = append(out, middleware.Throttle(middleware.ThrottleConfig{
			Rate:    c.Throttle.RequestsPerSecond,
			Slack:   c.Throttle.Slack,
			KeyFunc: middleware.GetClientIP,
		}))
	}

	if auth := c.authInterceptor(logger); auth != nil {
		out = append(out, auth)
	}

	if c.Server.BodyMaxBytes > 0 {
		out = append(out, middleware.MaxBodySize(c.Server.BodyMaxBytes))
	}
	return out
}

func (c *Config) authInterceptor(logger *zap.Logger) intercept.Interceptor {
	switch c.Auth.Type {
	case "basic":
		return middleware.NewBasicAuth(c.Auth.Users, logger)
	case "bearer":
		return middleware.NewBearerToken(toSet(c.Auth.Tokens), logger)
	case "api_key":
		return middleware.NewAPIKey(toSet(c.Auth.APIKeys), c.Auth.Header, c.Auth.Query, logger)
	}
	return nil
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
