package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// hooks is an Interceptor whose behavior is set per test.
type hooks struct {
	Base
	before func(ctx context.Context, req *Request) (Result, error)
	after  func(ctx context.Context, req *Request) error
	send   func(ctx context.Context, req *Request, msg exchange.Message, next exchange.Send) error

	mu          sync.Mutex
	beforeCalls int
	afterCalls  int
}

func (h *hooks) BeforeRequest(ctx context.Context, req *Request) (Result, error) {
	h.mu.Lock()
	h.beforeCalls++
	h.mu.Unlock()
	if h.before != nil {
		return h.before(ctx, req)
	}
	return Continue(), nil
}

func (h *hooks) AfterRequest(ctx context.Context, req *Request) error {
	h.mu.Lock()
	h.afterCalls++
	h.mu.Unlock()
	if h.after != nil {
		return h.after(ctx, req)
	}
	return nil
}

func (h *hooks) Send(ctx context.Context, req *Request, msg exchange.Message, next exchange.Send) error {
	if h.send != nil {
		return h.send(ctx, req, msg, next)
	}
	return next(ctx, msg)
}

// stream returns a receive function that yields body in chunks of size n and
// counts how many times it was called.
func stream(body string, n int, calls *int) exchange.Receive {
	data := []byte(body)
	return func(context.Context) (exchange.Message, error) {
		*calls++
		if len(data) == 0 {
			return exchange.Message{Type: exchange.MessageDisconnect}, nil
		}
		end := n
		if end > len(data) {
			end = len(data)
		}
		chunk := data[:end]
		data = data[end:]
		return exchange.Message{
			Type:     exchange.MessageRequest,
			Body:     chunk,
			MoreBody: len(data) > 0,
		}, nil
	}
}

type sink struct {
	mu       sync.Mutex
	messages []exchange.Message
}

func (s *sink) send(_ context.Context, msg exchange.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func httpScope(contentType string) *exchange.Scope {
	s := &exchange.Scope{Type: exchange.ScopeHTTP, Method: http.MethodPost, Path: "/submit"}
	if contentType != "" {
		s.Headers.Add("content-type", contentType)
	}
	return s
}

// echoApp writes back the request body it reads through receive.
var echoApp = exchange.AppFunc(func(ctx context.Context, scope *exchange.Scope, receive exchange.Receive, send exchange.Send) error {
	body, err := exchange.ReadBody(ctx, receive)
	if err != nil {
		return err
	}
	return exchange.PlainText(http.StatusOK, string(body)).Serve(ctx, scope, receive, send)
})

func TestNonHTTPScopeBypassesHooks(t *testing.T) {
	h := &hooks{}
	var gotScope *exchange.Scope
	inner := exchange.AppFunc(func(_ context.Context, scope *exchange.Scope, _ exchange.Receive, _ exchange.Send) error {
		gotScope = scope
		return nil
	})

	for _, typ := range []exchange.ScopeType{exchange.ScopeWebSocket, exchange.ScopeLifespan} {
		scope := &exchange.Scope{Type: typ, Path: "/ws"}
		if err := New(inner, h, Config{}).Serve(context.Background(), scope, nil, (&sink{}).send); err != nil {
			t.Fatalf("Serve() returned error: %v", err)
		}
		if gotScope != scope {
			t.Errorf("Expected %s scope to be forwarded unchanged", typ)
		}
	}

	if h.beforeCalls != 0 || h.afterCalls != 0 {
		t.Errorf("Expected no hooks to fire, got before=%d after=%d", h.beforeCalls, h.afterCalls)
	}
}

func TestBodyIsIdempotentAndReplayedToInnerApp(t *testing.T) {
	calls := 0
	var first, second []byte
	h := &hooks{before: func(ctx context.Context, req *Request) (Result, error) {
		var err error
		if first, err = req.Body(ctx); err != nil {
			return Result{}, err
		}
		if second, err = req.Body(ctx); err != nil {
			return Result{}, err
		}
		return Continue(), nil
	}}

	out := &sink{}
	err := New(echoApp, h, Config{}).Serve(context.Background(), httpScope("text/plain"), stream("hello world", 4, &calls), out.send)
	if err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}

	if string(first) != "hello world" || string(second) != "hello world" {
		t.Errorf("Expected both reads to return hello world, got %q and %q", first, second)
	}
	// 11 bytes in 4-byte chunks: exactly 3 pulls from the original stream.
	if calls != 3 {
		t.Errorf("Expected the original stream to be read 3 times, got %d", calls)
	}
	if len(out.messages) != 2 || string(out.messages[1].Body) != "hello world" {
		t.Errorf("Expected inner app to see the buffered body, got %+v", out.messages)
	}
}

func TestInnerAppGetsOriginalStreamWhenBodyNotRead(t *testing.T) {
	calls := 0
	out := &sink{}
	err := New(echoApp, &hooks{}, Config{}).Serve(context.Background(), httpScope(""), stream("streamed", 3, &calls), out.send)
	if err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if string(out.messages[1].Body) != "streamed" {
		t.Errorf("Expected streamed, got %q", out.messages[1].Body)
	}
}

func TestUpdateHeader(t *testing.T) {
	scope := httpScope("application/json")
	req := NewRequest(scope, nil, 0)

	req.UpdateHeader("X-Test", "1")
	if len(scope.Headers) != 2 {
		t.Fatalf("Expected 2 headers, got %d", len(scope.Headers))
	}
	if string(scope.Headers[1].Key) != "X-Test" || string(scope.Headers[1].Value) != "1" {
		t.Errorf("Expected (X-Test, 1) to be appended, got (%s, %s)", scope.Headers[1].Key, scope.Headers[1].Value)
	}

	req.UpdateHeader("X-Test", "2")
	if len(scope.Headers) != 2 {
		t.Fatalf("Expected length to stay 2, got %d", len(scope.Headers))
	}
	if string(scope.Headers[1].Key) != "X-Test" || string(scope.Headers[1].Value) != "2" {
		t.Errorf("Expected X-Test to be replaced in place, got (%s, %s)", scope.Headers[1].Key, scope.Headers[1].Value)
	}
}

func TestUpdateHeaderIsVisibleToInnerApp(t *testing.T) {
	h := &hooks{before: func(_ context.Context, req *Request) (Result, error) {
		req.UpdateHeader("x-user", "alice")
		return Continue(), nil
	}}
	var got string
	inner := exchange.AppFunc(func(_ context.Context, scope *exchange.Scope, _ exchange.Receive, _ exchange.Send) error {
		got = scope.Headers.Get("x-user")
		return nil
	})

	if err := New(inner, h, Config{}).Serve(context.Background(), httpScope(""), nil, (&sink{}).send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if got != "alice" {
		t.Errorf("Expected inner app to see x-user alice, got %q", got)
	}
}

func TestJSON(t *testing.T) {
	calls := 0
	req := NewRequest(httpScope("application/json"), stream(`{"a":1}`, 64, &calls), 0)

	v, err := req.JSON(context.Background())
	if err != nil {
		t.Fatalf("JSON() returned error: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["a"] != float64(1) {
		t.Errorf(`Expected {"a": 1}, got %#v`, v)
	}

	bad := NewRequest(httpScope("application/json"), stream("not json", 64, &calls), 0)
	_, err = bad.JSON(context.Background())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Format != "json" {
		t.Errorf("Expected *ParseError with format json, got %#v", err)
	}
}

func TestForm(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    Form
	}{
		{
			name:        "urlencoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "a=1&b=2",
			expected:    Form{"a": "1", "b": "2"},
		},
		{
			name:        "urlencoded with charset and repeated key",
			contentType: "application/x-www-form-urlencoded; charset=utf-8",
			body:        "tag=x&tag=y",
			expected:    Form{"tag": []string{"x", "y"}},
		},
		{
			name:        "plain text",
			contentType: "text/plain",
			body:        "a=1&b=2",
			expected:    Form{},
		},
		{
			name:        "no content type",
			contentType: "",
			body:        "a=1",
			expected:    Form{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			req := NewRequest(httpScope(tt.contentType), stream(tt.body, 64, &calls), 0)

			form, err := req.Form(context.Background())
			if err != nil {
				t.Fatalf("Form() returned error: %v", err)
			}
			if fmt.Sprint(form) != fmt.Sprint(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, form)
			}
			if body, _ := req.Body(context.Background()); string(body) != tt.body {
				t.Errorf("Expected body to stay readable, got %q", body)
			}
		})
	}
}

func TestFormMultipart(t *testing.T) {
	body := "--xyz\r\n" +
		"Content-Disposition: form-data; name=\"title\"\r\n\r\n" +
		"report\r\n" +
		"--xyz\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n\r\n" +
		"file contents\r\n" +
		"--xyz--\r\n"

	calls := 0
	req := NewRequest(httpScope("multipart/form-data; boundary=xyz"), stream(body, 16, &calls), 0)

	form, err := req.Form(context.Background())
	if err != nil {
		t.Fatalf("Form() returned error: %v", err)
	}
	if form.Value("title") != "report" {
		t.Errorf("Expected title report, got %q", form.Value("title"))
	}
	file := form.File("upload")
	if file == nil {
		t.Fatal("Expected an uploaded file")
	}
	if file.Filename != "a.txt" || file.ContentType != "text/plain" || string(file.Content) != "file contents" {
		t.Errorf("Unexpected file %+v", file)
	}
	if replay, _ := exchange.ReadBody(context.Background(), req.Receive()); string(replay) != body {
		t.Error("Expected body to be replayable after form parsing")
	}
}

func TestFormMultipartMissingBoundary(t *testing.T) {
	calls := 0
	req := NewRequest(httpScope("multipart/form-data"), stream("x", 16, &calls), 0)
	if _, err := req.Form(context.Background()); !errors.Is(err, ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
}

func TestBodyParams(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    map[string]any
	}{
		{"json object", "application/json", `{"name":"bob"}`, map[string]any{"name": "bob"}},
		{"form", "application/x-www-form-urlencoded", "name=bob", map[string]any{"name": "bob"}},
		// Malformed JSON falls through to form parsing, which yields nothing.
		{"malformed json", "application/json", "not json", map[string]any{}},
		{"json array", "application/x-www-form-urlencoded", `[1,2]`, map[string]any{"[1,2]": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			req := NewRequest(httpScope(tt.contentType), stream(tt.body, 64, &calls), 0)
			params, err := req.BodyParams(context.Background())
			if err != nil {
				t.Fatalf("BodyParams() returned error: %v", err)
			}
			if fmt.Sprint(params) != fmt.Sprint(tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, params)
			}
		})
	}
}

func TestOverrideSkipsInnerAppAndRunsAfterRequestOnce(t *testing.T) {
	h := &hooks{before: func(context.Context, *Request) (Result, error) {
		return Override(exchange.PlainText(http.StatusForbidden, "nope")), nil
	}}
	innerCalled := false
	inner := exchange.AppFunc(func(context.Context, *exchange.Scope, exchange.Receive, exchange.Send) error {
		innerCalled = true
		return nil
	})

	out := &sink{}
	if err := New(inner, h, Config{}).Serve(context.Background(), httpScope(""), nil, out.send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}

	if innerCalled {
		t.Error("Expected inner app not to be invoked")
	}
	if h.afterCalls != 1 {
		t.Errorf("Expected AfterRequest exactly once, got %d", h.afterCalls)
	}
	if len(out.messages) != 2 || out.messages[0].Status != http.StatusForbidden {
		t.Errorf("Expected a 403 response, got %+v", out.messages)
	}
}

func TestOverrideFramesPassThroughSend(t *testing.T) {
	h := &hooks{
		before: func(context.Context, *Request) (Result, error) {
			return Override(exchange.PlainText(http.StatusOK, "ok")), nil
		},
		send: func(ctx context.Context, _ *Request, msg exchange.Message, next exchange.Send) error {
			if msg.Type == exchange.MessageResponseStart {
				msg.Headers.Set("x-intercepted", "yes")
			}
			return next(ctx, msg)
		},
	}

	out := &sink{}
	if err := New(echoApp, h, Config{}).Serve(context.Background(), httpScope(""), nil, out.send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if out.messages[0].Headers.Get("x-intercepted") != "yes" {
		t.Error("Expected override response to pass through Send")
	}
}

func TestAfterRequestRunsWhenInnerAppFails(t *testing.T) {
	innerErr := errors.New("inner failed")
	afterErr := errors.New("after failed")
	h := &hooks{after: func(context.Context, *Request) error { return afterErr }}
	inner := exchange.AppFunc(func(context.Context, *exchange.Scope, exchange.Receive, exchange.Send) error {
		return innerErr
	})

	core, logs := observer.New(zap.ErrorLevel)
	err := New(inner, h, Config{Logger: zap.New(core)}).Serve(context.Background(), httpScope(""), nil, (&sink{}).send)

	if h.afterCalls != 1 {
		t.Errorf("Expected AfterRequest once, got %d", h.afterCalls)
	}
	if !errors.Is(err, innerErr) || !errors.Is(err, afterErr) {
		t.Errorf("Expected both errors to be reported, got %v", err)
	}
	if logs.FilterMessage("After-request hook failed").Len() != 1 {
		t.Errorf("Expected after-request failure to be logged, got %d entries", logs.Len())
	}
}

func TestBeforeRequestErrorAbortsRequest(t *testing.T) {
	boom := errors.New("boom")
	h := &hooks{before: func(context.Context, *Request) (Result, error) { return Result{}, boom }}
	innerCalled := false
	inner := exchange.AppFunc(func(context.Context, *exchange.Scope, exchange.Receive, exchange.Send) error {
		innerCalled = true
		return nil
	})

	err := New(inner, h, Config{}).Serve(context.Background(), httpScope(""), nil, (&sink{}).send)
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if innerCalled || h.afterCalls != 0 {
		t.Errorf("Expected no inner call and no AfterRequest, got inner=%v after=%d", innerCalled, h.afterCalls)
	}
}

func TestBodyLimit(t *testing.T) {
	calls := 0
	req := NewRequest(httpScope(""), stream("0123456789", 4, &calls), 8)

	if _, err := req.Body(context.Background()); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("Expected ErrBodyTooLarge, got %v", err)
	}
	pulled := calls
	if _, err := req.Body(context.Background()); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("Expected the same error on a second read, got %v", err)
	}
	if calls != pulled {
		t.Error("Expected the second read not to touch the stream")
	}
}

func TestBodyDisconnect(t *testing.T) {
	receive := func(context.Context) (exchange.Message, error) {
		return exchange.Message{Type: exchange.MessageDisconnect}, nil
	}
	req := NewRequest(httpScope(""), receive, 0)
	if _, err := req.Body(context.Background()); !errors.Is(err, ErrClientDisconnect) {
		t.Errorf("Expected ErrClientDisconnect, got %v", err)
	}
}

func TestBodyCanceledContext(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := NewRequest(httpScope(""), stream("data", 4, &calls), 0)
	if _, err := req.Body(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no reads after cancellation, got %d", calls)
	}
}

func TestNilReceiveIsEmptyBody(t *testing.T) {
	req := NewRequest(httpScope("text/plain"), nil, 0)
	body, err := req.Body(context.Background())
	if err != nil {
		t.Fatalf("Body() returned error: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("Expected an empty body, got %q", body)
	}

	out := &sink{}
	if err := New(echoApp, &hooks{}, Config{}).Serve(context.Background(), httpScope(""), nil, out.send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if len(out.messages) != 2 || out.messages[0].Status != http.StatusOK || len(out.messages[1].Body) != 0 {
		t.Errorf("Expected an empty 200 response, got %+v", out.messages)
	}
}

func TestBufferedReplay(t *testing.T) {
	calls := 0
	req := NewRequest(httpScope("text/plain"), stream("replayed", 3, &calls), 0)
	if req.Buffered() {
		t.Error("Expected the body not to be buffered before it is read")
	}
	if _, err := req.Body(context.Background()); err != nil {
		t.Fatalf("Body() returned error: %v", err)
	}
	if !req.Buffered() {
		t.Error("Expected the body to be buffered after Body")
	}

	receive := req.Receive()
	msg, err := receive(context.Background())
	if err != nil || msg.Type != exchange.MessageRequest || string(msg.Body) != "replayed" || msg.MoreBody {
		t.Fatalf("Expected one final frame with the body, got %+v (%v)", msg, err)
	}
	// After the final frame the replay behaves like an exhausted stream.
	if msg, _ = receive(context.Background()); msg.Type != exchange.MessageDisconnect {
		t.Errorf("Expected a disconnect after the body, got %s", msg.Type)
	}

	// A fresh replay starts from the beginning again.
	if again, _ := exchange.ReadBody(context.Background(), req.Receive()); string(again) != "replayed" {
		t.Errorf("Expected a second replay to see the body, got %q", again)
	}

	buffered := NewBufferedBody([]byte("replayed"))
	if buffered.Len() != len("replayed") {
		t.Errorf("Expected length %d, got %d", len("replayed"), buffered.Len())
	}
	data, err := io.ReadAll(buffered.Reader())
	if err != nil || string(data) != "replayed" {
		t.Errorf("Expected Reader to yield the body, got %q (%v)", data, err)
	}
	if data, _ := io.ReadAll(buffered.Reader()); string(data) != "replayed" {
		t.Errorf("Expected each Reader to start at the beginning, got %q", data)
	}
}

func TestFormValues(t *testing.T) {
	calls := 0
	req := NewRequest(httpScope("application/x-www-form-urlencoded"), stream("tag=x&tag=y&name=ada", 64, &calls), 0)
	form, err := req.Form(context.Background())
	if err != nil {
		t.Fatalf("Form() returned error: %v", err)
	}
	if got := form.Values("tag"); fmt.Sprint(got) != "[x y]" {
		t.Errorf("Expected [x y], got %v", got)
	}
	if got := form.Values("name"); fmt.Sprint(got) != "[ada]" {
		t.Errorf("Expected [ada], got %v", got)
	}
	if got := form.Values("missing"); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}
	if form.Value("tag") != "x" {
		t.Errorf("Expected first value x, got %q", form.Value("tag"))
	}
}

func TestRequestState(t *testing.T) {
	req := NewRequest(httpScope(""), nil, 0)
	if _, ok := req.Get("missing"); ok {
		t.Error("Expected missing key")
	}
	req.Set("k", 42)
	if v, ok := req.Get("k"); !ok || v != 42 {
		t.Errorf("Expected 42, got %v", v)
	}
}

func TestSharedMiddlewareIsolatesConcurrentRequests(t *testing.T) {
	h := &hooks{
		before: func(ctx context.Context, req *Request) (Result, error) {
			body, err := req.Body(ctx)
			if err != nil {
				return Result{}, err
			}
			req.Set("body", string(body))
			return Continue(), nil
		},
		send: func(ctx context.Context, req *Request, msg exchange.Message, next exchange.Send) error {
			if msg.Type == exchange.MessageResponseStart {
				v, _ := req.Get("body")
				msg.Headers.Set("x-body", v.(string))
			}
			return next(ctx, msg)
		},
	}
	mw := New(echoApp, h, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("request-%d", i)
			calls := 0
			out := &sink{}
			if err := mw.Serve(context.Background(), httpScope(""), stream(want, 3, &calls), out.send); err != nil {
				t.Errorf("Serve() returned error: %v", err)
				return
			}
			if got := out.messages[0].Headers.Get("x-body"); got != want {
				t.Errorf("Expected x-body %q, got %q", want, got)
			}
			if got := string(out.messages[1].Body); got != want {
				t.Errorf("Expected body %q, got %q", want, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestWrap(t *testing.T) {
	h := &hooks{}
	app := Wrap(h, Config{})(echoApp)
	calls := 0
	if err := app.Serve(context.Background(), httpScope(""), stream("x", 1, &calls), (&sink{}).send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if h.beforeCalls != 1 || h.afterCalls != 1 {
		t.Errorf("Expected hooks to run once each, got before=%d after=%d", h.beforeCalls, h.afterCalls)
	}
}
