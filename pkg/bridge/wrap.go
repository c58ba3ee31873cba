package bridge

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Suhaibinator/SIntercept/pkg/common"
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/zap"
)

// Wrap turns an http.Handler into an exchange.App.
// The handler sees a request rebuilt from the scope, and everything it writes is
// forwarded as response frames.
func Wrap(h http.Handler) exchange.App {
	return exchange.AppFunc(func(ctx context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) error {
		w := &frameWriter{ctx: ctx, send: send, header: make(http.Header)}
		h.ServeHTTP(w, RequestFromScope(ctx, scope, receive))
		return w.finish()
	})
}

// HTTPMiddleware adapts mw to plain net/http middleware.
func HTTPMiddleware(mw common.Middleware, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return NewHandler(mw(Wrap(next)), logger)
	}
}

// RequestFromScope rebuilds an *http.Request from scope.
// The body is pulled lazily through receive.
func RequestFromScope(ctx context.Context, scope *exchange.Scope, receive exchange.Receive) *http.Request {
	method := scope.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.ReadCloser = http.NoBody
	if receive != nil {
		body = &receiveReader{ctx: ctx, receive: receive}
	}

	header := scope.Headers.ToHTTP()
	r := &http.Request{
		Method:     method,
		URL:        &url.URL{Path: scope.Path, RawQuery: scope.RawQuery},
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Body:       body,
		Host:       header.Get("Host"),
		RemoteAddr: scope.RemoteAddr,
		RequestURI: requestURI(scope),
	}
	r.ContentLength = -1
	if cl := header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			r.ContentLength = n
		}
	}
	header.Del("Host")
	return r.WithContext(ctx)
}

func requestURI(scope *exchange.Scope) string {
	if scope.RawQuery == "" {
		return scope.Path
	}
	return scope.Path + "?" + scope.RawQuery
}

// receiveReader reads a request body out of request frames.
type receiveReader struct {
	ctx     context.Context
	receive exchange.Receive
	buf     []byte
	done    bool
	err     error
}

func (r *receiveReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.done {
			return 0, io.EOF
		}
		if r.err != nil {
			return 0, r.err
		}

		msg, err := r.receive(r.ctx)
		if err != nil {
			r.err = err
			return 0, err
		}
		if msg.Type == exchange.MessageDisconnect {
			r.err = exchange.ErrDisconnected
			return 0, r.err
		}
		r.buf = msg.Body
		r.done = !msg.MoreBody
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *receiveReader) Close() error {
	return nil
}

// frameWriter is an http.ResponseWriter that emits response frames.
type frameWriter struct {
	ctx         context.Context
	send        exchange.Send
	header      http.Header
	wroteHeader bool
	err         error
}

// Header returns the response headers.
func (w *frameWriter) Header() http.Header {
	return w.header
}

// WriteHeader sends the start frame. Later calls are ignored.
func (w *frameWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.err = w.send(w.ctx, exchange.Message{
		Type:    exchange.MessageResponseStart,
		Status:  statusCode,
		Headers: exchange.FromHTTP(w.header),
	})
}

// Write sends b as a non-final body frame, starting the response if needed.
func (w *frameWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		if w.header.Get("Content-Type") == "" && len(b) > 0 {
			w.header.Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return 0, w.err
	}
	w.err = w.send(w.ctx, exchange.Message{
		Type:     exchange.MessageResponseBody,
		Body:     append([]byte(nil), b...),
		MoreBody: true,
	})
	if w.err != nil {
		return 0, w.err
	}
	return len(b), nil
}

// Flush is a no-op: every Write is already forwarded as a frame.
func (w *frameWriter) Flush() {}

// finish closes the body stream with a final empty frame.
func (w *frameWriter) finish() error {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.err != nil {
		return w.err
	}
	return w.send(w.ctx, exchange.Message{Type: exchange.MessageResponseBody})
}
