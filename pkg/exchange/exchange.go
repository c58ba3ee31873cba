// Package exchange defines the message-frame protocol that interceptors operate on.
// A request is described by a Scope, its body is pulled through a Receive function
// and the response is pushed through a Send function as a sequence of Messages.
package exchange

import (
	"context"
	"errors"
)

// ScopeType identifies the kind of connection a Scope describes.
type ScopeType string

const (
	// ScopeHTTP is a plain HTTP request/response exchange.
	ScopeHTTP ScopeType = "http"

	// ScopeWebSocket is an upgraded websocket connection.
	ScopeWebSocket ScopeType = "websocket"

	// ScopeLifespan carries host startup and shutdown events.
	ScopeLifespan ScopeType = "lifespan"
)

// MessageType identifies a frame in the protocol.
type MessageType string

const (
	// MessageRequest carries a chunk of the request body.
	MessageRequest MessageType = "http.request"

	// MessageDisconnect signals that the client went away.
	MessageDisconnect MessageType = "http.disconnect"

	// MessageResponseStart carries the response status and headers.
	MessageResponseStart MessageType = "http.response.start"

	// MessageResponseBody carries a chunk of the response body.
	MessageResponseBody MessageType = "http.response.body"
)

// ErrDisconnected is returned when the client disconnects before the body is complete.
var ErrDisconnected = errors.New("exchange: client disconnected")

// ErrResponseStarted is returned when a start frame is sent twice.
var ErrResponseStarted = errors.New("exchange: response already started")

// ErrResponseNotStarted is returned when a body frame is sent before the start frame.
var ErrResponseNotStarted = errors.New("exchange: response not started")

// Scope describes one incoming connection.
type Scope struct {
	Type       ScopeType
	Method     string
	Scheme     string
	Path       string
	RawQuery   string
	RemoteAddr string
	Headers    Headers

	// Params holds route parameters filled in by the router, if any.
	Params map[string]string
}

// Message is a single frame of the protocol.
// Which fields are meaningful depends on Type.
type Message struct {
	Type     MessageType
	Status   int
	Headers  Headers
	Body     []byte
	MoreBody bool
}

// Receive pulls the next request frame.
type Receive func(ctx context.Context) (Message, error)

// Send pushes a response frame.
type Send func(ctx context.Context, msg Message) error

// App is anything that can serve a scope.
type App interface {
	Serve(ctx context.Context, scope *Scope, receive Receive, send Send) error
}

// AppFunc adapts an ordinary function to the App interface.
type AppFunc func(ctx context.Context, scope *Scope, receive Receive, send Send) error

// Serve calls f(ctx, scope, receive, send).
func (f AppFunc) Serve(ctx context.Context, scope *Scope, receive Receive, send Send) error {
	return f(ctx, scope, receive, send)
}

// Param returns the route parameter with the given name, or an empty string.
func (s *Scope) Param(name string) string {
	if s.Params == nil {
		return ""
	}
	return s.Params[name]
}

// Clone returns a copy of the scope with its own header list and params.
func (s *Scope) Clone() *Scope {
	c := *s
	c.Headers = s.Headers.Clone()
	if s.Params != nil {
		c.Params = make(map[string]string, len(s.Params))
		for k, v := range s.Params {
			c.Params[k] = v
		}
	}
	return &c
}

// ReadBody drains receive until the last request frame and returns the body.
func ReadBody(ctx context.Context, receive Receive) ([]byte, error) {
	var body []byte
	for {
		msg, err := receive(ctx)
		if err != nil {
			return body, err
		}
		if msg.Type == MessageDisconnect {
			return body, ErrDisconnected
		}
		body = append(body, msg.Body...)
		if !msg.MoreBody {
			return body, nil
		}
	}
}
