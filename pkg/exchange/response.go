package exchange

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Suhaibinator/SIntercept/pkg/codec"
)

// Response is a complete, buffered response. It is an App, so an interceptor can
// return it from BeforeRequest to answer a request without calling the inner app.
type Response struct {
	Status  int
	Headers Headers
	Body    []byte
}

// NewResponse creates a response with the given status, content type and body.
func NewResponse(status int, contentType string, body []byte) *Response {
	r := &Response{Status: status, Body: body}
	if contentType != "" {
		r.Headers.Set("content-type", contentType)
	}
	return r
}

// PlainText creates a text/plain response.
func PlainText(status int, text string) *Response {
	return NewResponse(status, "text/plain; charset=utf-8", []byte(text))
}

// JSON creates an application/json response from v.
func JSON(status int, v any) (*Response, error) {
	c := codec.NewJSONCodec[any, any]()
	body, err := c.Encode(v)
	if err != nil {
		return nil, err
	}
	return NewResponse(status, c.ContentType(), body), nil
}

// Redirect creates a redirect response to location.
// A zero status defaults to 307 Temporary Redirect.
func Redirect(status int, location string) *Response {
	if status == 0 {
		status = http.StatusTemporaryRedirect
	}
	r := &Response{Status: status}
	r.Headers.Set("location", location)
	return r
}

// Error creates a plain text response carrying the standard status text.
func Error(status int) *Response {
	return PlainText(status, http.StatusText(status))
}

// Serve sends the start frame followed by a single body frame.
func (r *Response) Serve(ctx context.Context, _ *Scope, _ Receive, send Send) error {
	headers := r.Headers.Clone()
	if headers.Get("content-length") == "" {
		headers.Add("content-length", strconv.Itoa(len(r.Body)))
	}

	if err := send(ctx, Message{
		Type:    MessageResponseStart,
		Status:  r.Status,
		Headers: headers,
	}); err != nil {
		return err
	}
	return send(ctx, Message{
		Type: MessageResponseBody,
		Body: r.Body,
	})
}
