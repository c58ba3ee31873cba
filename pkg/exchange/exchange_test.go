package exchange

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

// recorder collects every frame sent through it.
type recorder struct {
	messages []Message
}

func (r *recorder) send(_ context.Context, msg Message) error {
	r.messages = append(r.messages, msg)
	return nil
}

func TestHeadersSetAppendsAndReplaces(t *testing.T) {
	h := Headers{
		{Key: []byte("host"), Value: []byte("example.com")},
	}

	h.Set("X-Test", "1")
	if len(h) != 2 {
		t.Fatalf("Expected 2 headers, got %d", len(h))
	}
	if string(h[1].Key) != "X-Test" || string(h[1].Value) != "1" {
		t.Errorf("Expected appended X-Test: 1, got %s: %s", h[1].Key, h[1].Value)
	}

	h.Set("X-Test", "2")
	if len(h) != 2 {
		t.Fatalf("Expected 2 headers after replace, got %d", len(h))
	}
	if string(h[1].Value) != "2" {
		t.Errorf("Expected X-Test to be replaced in place with 2, got %s", h[1].Value)
	}
}

func TestHeadersSetIsCaseSensitive(t *testing.T) {
	h := Headers{{Key: []byte("x-test"), Value: []byte("lower")}}

	h.Set("X-Test", "upper")
	if len(h) != 2 {
		t.Fatalf("Expected a second pair for a differently cased key, got %d pairs", len(h))
	}
	if string(h[0].Value) != "lower" {
		t.Errorf("Expected original pair to be untouched, got %s", h[0].Value)
	}

	// Lookups still ignore case and return the first match.
	if got := h.Get("X-TEST"); got != "lower" {
		t.Errorf("Expected Get to return lower, got %q", got)
	}
	if got := h.Values("x-test"); len(got) != 2 {
		t.Errorf("Expected 2 values, got %v", got)
	}
}

func TestHeadersDelAndClone(t *testing.T) {
	h := Headers{}
	h.Add("a", "1")
	h.Add("B", "2")
	h.Add("A", "3")

	c := h.Clone()
	c.Del("a")
	if len(c) != 1 || string(c[0].Key) != "B" {
		t.Errorf("Expected only B to remain, got %v", c)
	}
	if len(h) != 3 {
		t.Errorf("Expected original to keep 3 pairs, got %d", len(h))
	}
}

func TestHeadersHTTPConversion(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Add("Accept", "text/html")
	src.Add("Accept", "application/xml")

	h := FromHTTP(src)
	if len(h) != 3 {
		t.Fatalf("Expected 3 pairs, got %d", len(h))
	}
	// Sorted, lower-cased keys.
	if string(h[0].Key) != "accept" || string(h[2].Key) != "content-type" {
		t.Errorf("Unexpected order: %s, %s", h[0].Key, h[2].Key)
	}

	back := h.ToHTTP()
	if back.Get("Content-Type") != "application/json" {
		t.Errorf("Expected content type to survive conversion, got %q", back.Get("Content-Type"))
	}
	if len(back.Values("Accept")) != 2 {
		t.Errorf("Expected 2 accept values, got %v", back.Values("Accept"))
	}
}

func TestResponseServe(t *testing.T) {
	rec := &recorder{}
	resp := PlainText(http.StatusTeapot, "short and stout")

	if err := resp.Serve(context.Background(), &Scope{Type: ScopeHTTP}, nil, rec.send); err != nil {
		t.Fatalf("Serve() returned error: %v", err)
	}
	if len(rec.messages) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(rec.messages))
	}

	start := rec.messages[0]
	if start.Type != MessageResponseStart || start.Status != http.StatusTeapot {
		t.Errorf("Expected start frame with 418, got %s %d", start.Type, start.Status)
	}
	if start.Headers.Get("content-length") != "15" {
		t.Errorf("Expected content-length 15, got %q", start.Headers.Get("content-length"))
	}
	if string(rec.messages[1].Body) != "short and stout" {
		t.Errorf("Unexpected body %q", rec.messages[1].Body)
	}
}

func TestJSONResponse(t *testing.T) {
	resp, err := JSON(http.StatusOK, map[string]string{"status": "ok"})
	if err != nil {
		t.Fatalf("JSON() returned error: %v", err)
	}
	if resp.Headers.Get("content-type") != "application/json" {
		t.Errorf("Expected application/json, got %q", resp.Headers.Get("content-type"))
	}
	if string(resp.Body) != `{"status":"ok"}` {
		t.Errorf("Unexpected body %s", resp.Body)
	}

	if _, err := JSON(http.StatusOK, make(chan int)); err == nil {
		t.Error("Expected error encoding a channel")
	}
}

func TestRedirectDefaultsStatus(t *testing.T) {
	resp := Redirect(0, "/login")
	if resp.Status != http.StatusTemporaryRedirect {
		t.Errorf("Expected 307, got %d", resp.Status)
	}
	if resp.Headers.Get("location") != "/login" {
		t.Errorf("Expected location /login, got %q", resp.Headers.Get("location"))
	}
}

func TestReadBody(t *testing.T) {
	chunks := []Message{
		{Type: MessageRequest, Body: []byte("hello "), MoreBody: true},
		{Type: MessageRequest, Body: []byte("world")},
	}
	i := 0
	receive := func(context.Context) (Message, error) {
		msg := chunks[i]
		i++
		return msg, nil
	}

	body, err := ReadBody(context.Background(), receive)
	if err != nil {
		t.Fatalf("ReadBody() returned error: %v", err)
	}
	if string(body) != "hello world" {
		t.Errorf("Expected hello world, got %q", body)
	}
}

func TestReadBodyDisconnect(t *testing.T) {
	receive := func(context.Context) (Message, error) {
		return Message{Type: MessageDisconnect}, nil
	}
	if _, err := ReadBody(context.Background(), receive); !errors.Is(err, ErrDisconnected) {
		t.Errorf("Expected ErrDisconnected, got %v", err)
	}
}

func TestScopeCloneAndParam(t *testing.T) {
	s := &Scope{
		Type:    ScopeHTTP,
		Headers: Headers{{Key: []byte("a"), Value: []byte("1")}},
		Params:  map[string]string{"id": "42"},
	}
	c := s.Clone()
	c.Headers.Set("a", "2")
	c.Params["id"] = "43"

	if s.Headers.Get("a") != "1" || s.Param("id") != "42" {
		t.Error("Expected clone to be independent of the original")
	}
	if (&Scope{}).Param("missing") != "" {
		t.Error("Expected empty param on nil map")
	}
}
