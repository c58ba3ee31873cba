package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"github.com/Suhaibinator/SIntercept/pkg/intercept"
	"go.uber.org/zap"
)

// AuthProvider defines an interface for authentication providers.
// The package includes BasicAuthProvider, BearerTokenProvider and APIKeyProvider.
type AuthProvider interface {
	// Authenticate returns true if the request carries valid credentials.
	Authenticate(req *intercept.Request) bool
}

// AuthFunc adapts a plain function to AuthProvider.
type AuthFunc func(req *intercept.Request) bool

// Authenticate calls f(req).
func (f AuthFunc) Authenticate(req *intercept.Request) bool {
	return f(req)
}

// BasicAuthProvider provides HTTP Basic Authentication.
// It validates username and password credentials against a predefined map.
type BasicAuthProvider struct {
	Credentials map[string]string // username -> password
}

// Authenticate authenticates a request using HTTP Basic Authentication.
func (p *BasicAuthProvider) Authenticate(req *intercept.Request) bool {
	username, password, ok := basicAuth(req)
	if !ok {
		return false
	}

	expectedPassword, exists := p.Credentials[username]
	if !exists {
		return false
	}

	return password == expectedPassword
}

// BearerTokenProvider provides Bearer Token Authentication.
// It can validate tokens against a predefined map or using a custom validator function.
type BearerTokenProvider struct {
	ValidTokens map[string]bool         // token -> valid
	Validator   func(token string) bool // optional token validator
}

// Authenticate authenticates a request using Bearer Token Authentication.
// The validator function takes precedence over ValidTokens when set.
func (p *BearerTokenProvider) Authenticate(req *intercept.Request) bool {
	token, ok := bearerToken(req)
	if !ok {
		return false
	}

	if p.Validator != nil {
		return p.Validator(token)
	}
	return p.ValidTokens[token]
}

// APIKeyProvider provides API Key Authentication.
// It can validate API keys provided in a header or query parameter.
type APIKeyProvider struct {
	ValidKeys map[string]bool // key -> valid
	Header    string          // header name (e.g., "X-API-Key")
	Query     string          // query parameter name (e.g., "api_key")
}

// Authenticate checks the configured header first, then the query parameter.
func (p *APIKeyProvider) Authenticate(req *intercept.Request) bool {
	key := apiKey(req, p.Header, p.Query)
	return key != "" && p.ValidKeys[key]
}

type authentication struct {
	intercept.Base
	provider AuthProvider
	logger   *zap.Logger
}

// Authentication creates an interceptor that answers 401 Unauthorized, without
// calling the inner app, when provider rejects the request.
func Authentication(provider AuthProvider, logger *zap.Logger) intercept.Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authentication{provider: provider, logger: logger}
}

func (a *authentication) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	if a.provider.Authenticate(req) {
		return intercept.Continue(), nil
	}
	a.logger.Warn("Authentication failed",
		zap.String("method", req.Method()),
		zap.String("path", req.Path()),
		zap.String("remote_addr", req.Scope().RemoteAddr),
	)
	return intercept.Override(exchange.Error(http.StatusUnauthorized)), nil
}

// NewBasicAuth creates an interceptor that uses HTTP Basic Authentication.
func NewBasicAuth(credentials map[string]string, logger *zap.Logger) intercept.Interceptor {
	return Authentication(&BasicAuthProvider{Credentials: credentials}, logger)
}

// NewBearerToken creates an interceptor that uses Bearer Token Authentication.
func NewBearerToken(validTokens map[string]bool, logger *zap.Logger) intercept.Interceptor {
	return Authentication(&BearerTokenProvider{ValidTokens: validTokens}, logger)
}

// NewAPIKey creates an interceptor that uses API Key Authentication.
func NewAPIKey(validKeys map[string]bool, header, query string, logger *zap.Logger) intercept.Interceptor {
	return Authentication(&APIKeyProvider{ValidKeys: validKeys, Header: header, Query: query}, logger)
}

// UserAuthProvider defines an interface for authentication providers that return a user object.
type UserAuthProvider[T any] interface {
	// AuthenticateUser returns the user if authentication is successful, nil and an error otherwise.
	AuthenticateUser(req *intercept.Request) (*T, error)
}

// BearerTokenUserAuthProvider provides Bearer Token Authentication with user object return.
type BearerTokenUserAuthProvider[T any] struct {
	GetUserFunc func(token string) (*T, error)
}

// AuthenticateUser looks up the user for the bearer token.
func (p *BearerTokenUserAuthProvider[T]) AuthenticateUser(req *intercept.Request) (*T, error) {
	token, ok := bearerToken(req)
	if !ok {
		return nil, errors.New("no bearer token")
	}
	return p.GetUserFunc(token)
}

// APIKeyUserAuthProvider provides API Key Authentication with user object return.
type APIKeyUserAuthProvider[T any] struct {
	GetUserFunc func(key string) (*T, error)
	Header      string // header name (e.g., "X-API-Key")
	Query       string // query parameter name (e.g., "api_key")
}

// AuthenticateUser looks up the user for the API key.
func (p *APIKeyUserAuthProvider[T]) AuthenticateUser(req *intercept.Request) (*T, error) {
	key := apiKey(req, p.Header, p.Query)
	if key == "" {
		return nil, errors.New("no API key found")
	}
	return p.GetUserFunc(key)
}

type userKey[T any] struct{}

type userAuthentication[T any] struct {
	intercept.Base
	provider UserAuthProvider[T]
	logger   *zap.Logger
}

// AuthenticationWithUser creates an interceptor that stores the authenticated
// user for GetUser and answers 401 Unauthorized when authentication fails.
func AuthenticationWithUser[T any](provider UserAuthProvider[T], logger *zap.Logger) intercept.Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userAuthentication[T]{provider: provider, logger: logger}
}

func (a *userAuthentication[T]) BeforeRequest(_ context.Context, req *intercept.Request) (intercept.Result, error) {
	user, err := a.provider.AuthenticateUser(req)
	if err != nil || user == nil {
		a.logger.Warn("Authentication failed",
			zap.Error(err),
			zap.String("method", req.Method()),
			zap.String("path", req.Path()),
			zap.String("remote_addr", req.Scope().RemoteAddr),
		)
		return intercept.Override(exchange.Error(http.StatusUnauthorized)), nil
	}
	req.Set(userKey[T]{}, user)
	return intercept.Continue(), nil
}

// GetUser returns the user stored by AuthenticationWithUser.
// Returns nil if no user is found.
func GetUser[T any](req *intercept.Request) *T {
	v, ok := req.Get(userKey[T]{})
	if !ok {
		return nil
	}
	user, _ := v.(*T)
	return user
}

// basicAuth decodes the Authorization header using net/http's parser.
func basicAuth(req *intercept.Request) (username, password string, ok bool) {
	auth := req.Header("authorization")
	if auth == "" {
		return "", "", false
	}
	r := &http.Request{Header: http.Header{"Authorization": {auth}}}
	return r.BasicAuth()
}

func bearerToken(req *intercept.Request) (string, bool) {
	token, ok := strings.CutPrefix(req.Header("authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func apiKey(req *intercept.Request, header, query string) string {
	if header != "" {
		if key := req.Header(header); key != "" {
			return key
		}
	}
	if query != "" {
		values, err := url.ParseQuery(req.Scope().RawQuery)
		if err == nil {
			return values.Get(query)
		}
	}
	return ""
}
