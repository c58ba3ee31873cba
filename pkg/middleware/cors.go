package middleware

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
)

// CORSConfig defines configuration for CORS
type CORSConfig struct {
	AllowOrigins     []string // "*" allows any origin
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // seconds, zero omits the header
}

type cors struct {
	intercept.Base
	config CORSConfig
}

// CORS creates an interceptor that handles Cross-Origin Resource Sharing.
// Preflight requests are answered with 204 No Content without reaching the
// inner app; other responses get the CORS headers added to their start frame.
func CORS(config CORSConfig) intercept.Interceptor {
	if len(config.AllowMethods) == 0 {
		config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions}
	}
	return &cors{config: config}
}

func (c *cors) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	if req.Method() != http.MethodOptions || req.Header("access-control-request-method") == "" {
		return intercept.Continue(), nil
	}

	// Handle preflight requests
	resp := &exchange.Response{Status: http.StatusNoContent}
	if c.setOriginHeaders(&resp.Headers, req.Header("origin")) {
		resp.Headers.Set("access-control-allow-methods", strings.Join(c.config.AllowMethods, ", "))
		if len(c.config.AllowHeaders) > 0 {
			resp.Headers.Set("access-control-allow-headers", strings.Join(c.config.AllowHeaders, ", "))
		}
		if c.config.MaxAge > 0 {
			resp.Headers.Set("access-control-max-age", strconv.Itoa(c.config.MaxAge))
		}
	}
	return intercept.Override(resp), nil
}

func (c *cors) Send(ctx context.Context, req *intercept.Request, msg exchange.Message, next exchange.Send) error {
	if msg.Type == exchange.MessageResponseStart {
		headers := msg.Headers.Clone()
		if c.setOriginHeaders(&headers, req.Header("origin")) && len(c.config.ExposeHeaders) > 0 {
			headers.Set("access-control-expose-headers", strings.Join(c.config.ExposeHeaders, ", "))
		}
		msg.Headers = headers
	}
	return next(ctx, msg)
}

// setOriginHeaders adds the allow-origin headers when origin is allowed.
func (c *cors) setOriginHeaders(headers *exchange.Headers, origin string) bool {
	if origin == "" {
		return false
	}
	switch {
	case slices.Contains(c.config.AllowOrigins, origin):
		headers.Set("access-control-allow-origin", origin)
		headers.Set("vary", "Origin")
	case slices.Contains(c.config.AllowOrigins, "*"):
		if c.config.AllowCredentials {
			// Credentialed requests may not use the wildcard
			headers.Set("access-control-allow-origin", origin)
			headers.Set("vary", "Origin")
		} else {
			headers.Set("access-control-allow-origin", "*")
		}
	default:
		return false
	}
	if c.config.AllowCredentials {
		headers.Set("access-control-allow-credentials", "true")
	}
	return true
}
