package middleware

import (
	"context"
	"strings"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
)

// IPSourceType defines the source for client IP addresses
type IPSourceType string

const (
	// IPSourceRemoteAddr uses the scope's RemoteAddr field
	IPSourceRemoteAddr IPSourceType = "remote_addr"

	// IPSourceXForwardedFor uses the X-Forwarded-For header
	IPSourceXForwardedFor IPSourceType = "x_forwarded_for"

	// IPSourceXRealIP uses the X-Real-IP header
	IPSourceXRealIP IPSourceType = "x_real_ip"

	// IPSourceCustomHeader uses a custom header specified in the configuration
	IPSourceCustomHeader IPSourceType = "custom_header"
)

// ClientIPHeader is the request header the ClientIP interceptor writes the resolved address to.
const ClientIPHeader = "x-client-ip"

// IPConfig defines configuration for IP extraction
type IPConfig struct {
	// Source specifies where to extract the client IP from
	Source IPSourceType

	// CustomHeader is the name of the custom header to use when Source is IPSourceCustomHeader
	CustomHeader string

	// TrustProxy determines whether to trust proxy headers like X-Forwarded-For
	// If false, RemoteAddr will be used as a fallback for all sources
	TrustProxy bool
}

// DefaultIPConfig returns the default IP configuration
func DefaultIPConfig() *IPConfig {
	return &IPConfig{
		Source:     IPSourceXForwardedFor,
		TrustProxy: true,
	}
}

type clientIPKey struct{}

type clientIP struct {
	intercept.Base
	config *IPConfig
}

// ClientIP creates an interceptor that resolves the client IP, stores it for
// GetClientIP and forwards it to the inner app in the x-client-ip header.
func ClientIP(config *IPConfig) intercept.Interceptor {
	if config == nil {
		config = DefaultIPConfig()
	}
	return &clientIP{config: config}
}

func (c *clientIP) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	ip := ExtractClientIP(req.Scope(), c.config)
	req.Set(clientIPKey{}, ip)
	if ip != "" {
		req.UpdateHeader(ClientIPHeader, ip)
	}
	return intercept.Continue(), nil
}

// GetClientIP returns the client IP resolved by the ClientIP interceptor.
// Without it, the address is extracted with the default configuration.
func GetClientIP(req *intercept.Request) string {
	if ip, ok := req.Get(clientIPKey{}); ok {
		return ip.(string)
	}
	return ExtractClientIP(req.Scope(), DefaultIPConfig())
}

// ExtractClientIP extracts the client IP from scope based on the configuration
func ExtractClientIP(scope *exchange.Scope, config *IPConfig) string {
	var ip string

	switch config.Source {
	case IPSourceXForwardedFor:
		ip = extractIPFromXForwardedFor(scope)
	case IPSourceXRealIP:
		ip = scope.Headers.Get("x-real-ip")
	case IPSourceCustomHeader:
		ip = scope.Headers.Get(config.CustomHeader)
	case IPSourceRemoteAddr:
		ip = scope.RemoteAddr
	default:
		ip = extractIPFromXForwardedFor(scope)
	}

	// If we don't trust proxy headers or couldn't extract an IP, fall back to RemoteAddr
	if !config.TrustProxy || ip == "" {
		ip = scope.RemoteAddr
	}

	// Clean up the IP address (remove port if present)
	return cleanIP(strings.TrimSpace(ip))
}

// extractIPFromXForwardedFor extracts the client IP from the X-Forwarded-For header
// The header is a comma-separated list of IPs, with the leftmost being the original client
func extractIPFromXForwardedFor(scope *exchange.Scope) string {
	xff := scope.Headers.Get("x-forwarded-for")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// cleanIP removes the port from an IP address if present
func cleanIP(ip string) string {
	// IPv6 addresses with ports are formatted as [IPv6]:port
	if strings.HasPrefix(ip, "[") {
		if end := strings.LastIndex(ip, "]"); end > 0 {
			return ip[1:end]
		}
	}

	// Bare IPv6 address, no port
	if strings.Count(ip, ":") > 1 {
		return ip
	}

	// IPv4 addresses with ports are formatted as IPv4:port
	if end := strings.LastIndex(ip, ":"); end > 0 {
		return ip[:end]
	}

	return ip
}
