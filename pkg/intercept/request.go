package intercept

import (
	"context"
	"sync"

	"github.com/Suhaibinator/SIntercept/pkg/codec"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
)

// Request is the per-request view an interceptor works with.
// It owns the buffered body and any state hooks want to carry from
// BeforeRequest to Send and AfterRequest. A Request lives for one call only.
type Request struct {
	scope   *exchange.Scope
	receive exchange.Receive

	bodyMu      sync.Mutex
	maxBodySize int64
	body        *BufferedBody
	bodyErr     error

	mu    sync.Mutex
	state map[any]any
}

// NewRequest wraps scope and its receive function.
// A positive maxBodySize limits how much Body will buffer.
// A nil receive is treated as an empty body.
func NewRequest(scope *exchange.Scope, receive exchange.Receive, maxBodySize int64) *Request {
	if receive == nil {
		receive = NewBufferedBody(nil).Receive()
	}
	return &Request{
		scope:       scope,
		receive:     receive,
		maxBodySize: maxBodySize,
	}
}

// Scope returns the underlying scope. Changes to it are seen by the inner app.
func (r *Request) Scope() *exchange.Scope {
	return r.scope
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.scope.Method
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.scope.Path
}

// Header returns the first value of the named header, ignoring case.
func (r *Request) Header(name string) string {
	return r.scope.Headers.Get(name)
}

// ContentType returns the Content-Type header.
func (r *Request) ContentType() string {
	return r.scope.Headers.Get("content-type")
}

// UpdateHeader sets a request header. An existing pair whose key is byte-for-byte
// equal to key has its value replaced in place; otherwise the pair is appended.
func (r *Request) UpdateHeader(key, value string) {
	r.scope.Headers.Set(key, value)
}

// SetMaxBodySize changes the body limit. It has no effect once the body is read.
func (r *Request) SetMaxBodySize(n int64) {
	r.bodyMu.Lock()
	r.maxBodySize = n
	r.bodyMu.Unlock()
}

// Receive returns the receive function downstream readers should use.
// Once the body is buffered this replays the buffer; before that it is the
// original stream. A replay delivers the body in a single final frame and then
// reports a disconnect, so each consumer needs its own call to Receive.
func (r *Request) Receive() exchange.Receive {
	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()
	if r.body != nil {
		return r.body.Receive()
	}
	return r.receive
}

// Buffered reports whether the body has been read into memory.
func (r *Request) Buffered() bool {
	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()
	return r.body != nil
}

// Body reads the request body to completion and buffers it.
// Later calls return the same bytes (or the same error) without touching the
// original stream again, and Receive starts replaying the buffer.
// Callers must not modify the returned slice.
func (r *Request) Body(ctx context.Context) ([]byte, error) {
	r.bodyMu.Lock()
	defer r.bodyMu.Unlock()

	if r.body != nil {
		return r.body.Bytes(), nil
	}
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}

	data, err := drain(ctx, r.receive, r.maxBodySize)
	if err != nil {
		r.bodyErr = err
		return nil, err
	}
	r.body = NewBufferedBody(data)
	return r.body.Bytes(), nil
}

// JSON decodes the body as JSON into a generic value.
func (r *Request) JSON(ctx context.Context) (any, error) {
	return Decode[any](ctx, r, codec.NewJSONCodec[any, any]())
}

// Form decodes a multipart or URL-encoded body according to Content-Type.
// Any other content type, or none, yields an empty form.
func (r *Request) Form(ctx context.Context) (Form, error) {
	body, err := r.Body(ctx)
	if err != nil {
		return nil, err
	}
	return parseForm(r.ContentType(), body)
}

// BodyParams tries JSON first and falls back to form decoding on any failure,
// including a JSON value that is not an object. A malformed JSON body sent as
// application/json therefore produces an empty map rather than an error.
func (r *Request) BodyParams(ctx context.Context) (map[string]any, error) {
	if v, err := r.JSON(ctx); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}

	form, err := r.Form(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any(form), nil
}

// Set stores a per-request value.
func (r *Request) Set(key, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = make(map[any]any)
	}
	r.state[key] = value
}

// Get returns a per-request value stored with Set.
func (r *Request) Get(key any) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state[key]
	return v, ok
}

// Decode buffers the body and decodes it with dec.
// Decoding failures are returned as *ParseError.
func Decode[T any](ctx context.Context, r *Request, dec codec.Decoder[T]) (T, error) {
	var zero T

	body, err := r.Body(ctx)
	if err != nil {
		return zero, err
	}

	v, err := dec.Decode(body)
	if err != nil {
		return zero, &ParseError{Format: formatOf(dec), Err: err}
	}
	return v, nil
}

func formatOf(dec any) string {
	if ct, ok := dec.(interface{ ContentType() string }); ok {
		switch ct.ContentType() {
		case "application/json":
			return "json"
		case "application/x-protobuf":
			return "protobuf"
		}
	}
	return "body"
}
