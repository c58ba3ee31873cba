// Package bridge connects the exchange protocol to net/http and Echo.
//
// Handler serves an exchange.App on a net/http server, Wrap turns any http.Handler
// into an exchange.App, and HTTPMiddleware / EchoMiddleware let interceptors run in
// front of existing handlers without changing them.
package bridge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/zap"
)

// chunkSize is the largest request body frame the bridge emits.
const chunkSize = 32 << 10

// Handler serves an exchange.App over net/http.
type Handler struct {
	app    exchange.App
	logger *zap.Logger
}

// NewHandler creates a Handler for app. A nil logger disables logging.
func NewHandler(app exchange.App, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{app: app, logger: logger}
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := ScopeFromRequest(r)
	out := &responseSender{w: w}

	err := h.app.Serve(r.Context(), scope, bodyReceiver(r.Body), out.send)
	if err == nil {
		return
	}

	h.logger.Error("App returned error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Bool("response_started", out.isStarted()),
		zap.Error(err),
	)

	if out.isStarted() {
		return
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// ScopeFromRequest builds an HTTP scope from r.
func ScopeFromRequest(r *http.Request) *exchange.Scope {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	headers := exchange.FromHTTP(r.Header)
	if r.Host != "" && headers.Get("host") == "" {
		headers = append(exchange.Headers{{Key: []byte("host"), Value: []byte(r.Host)}}, headers...)
	}

	return &exchange.Scope{
		Type:       exchange.ScopeHTTP,
		Method:     r.Method,
		Scheme:     scheme,
		Path:       r.URL.Path,
		RawQuery:   r.URL.RawQuery,
		RemoteAddr: r.RemoteAddr,
		Headers:    headers,
	}
}

// bodyReceiver turns a request body into a receive function.
// After the last frame it reports a disconnect.
func bodyReceiver(body io.Reader) exchange.Receive {
	var (
		mu   sync.Mutex
		done bool
		buf  []byte
	)
	return func(ctx context.Context) (exchange.Message, error) {
		mu.Lock()
		defer mu.Unlock()

		if done {
			return exchange.Message{Type: exchange.MessageDisconnect}, nil
		}
		if err := ctx.Err(); err != nil {
			return exchange.Message{}, err
		}
		if body == nil || body == http.NoBody {
			done = true
			return exchange.Message{Type: exchange.MessageRequest}, nil
		}

		if buf == nil {
			buf = make([]byte, chunkSize)
		}
		n, err := body.Read(buf)
		chunk := append([]byte(nil), buf[:n]...)
		if err == io.EOF {
			done = true
			return exchange.Message{Type: exchange.MessageRequest, Body: chunk}, nil
		}
		if err != nil {
			return exchange.Message{}, err
		}
		return exchange.Message{Type: exchange.MessageRequest, Body: chunk, MoreBody: true}, nil
	}
}

// responseSender writes frames to an http.ResponseWriter.
type responseSender struct {
	w       http.ResponseWriter
	mu      sync.Mutex
	started bool
}

func (s *responseSender) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *responseSender) send(_ context.Context, msg exchange.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Type {
	case exchange.MessageResponseStart:
		if s.started {
			return exchange.ErrResponseStarted
		}
		header := s.w.Header()
		for _, h := range msg.Headers {
			header.Add(string(h.Key), string(h.Value))
		}
		status := msg.Status
		if status == 0 {
			status = http.StatusOK
		}
		s.w.WriteHeader(status)
		s.started = true
		return nil

	case exchange.MessageResponseBody:
		if !s.started {
			return exchange.ErrResponseNotStarted
		}
		if len(msg.Body) > 0 {
			if _, err := s.w.Write(msg.Body); err != nil {
				return err
			}
		}
		if msg.MoreBody {
			if f, ok := s.w.(http.Flusher); ok {
				f.Flush()
			}
		}
		return nil
	}

	return errors.New("bridge: unsupported message type " + string(msg.Type))
}
