package intercept

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
)

// BufferedBody holds a request body that has been read to completion.
// It never touches the original stream again; every reader gets the same bytes.
type BufferedBody struct {
	data []byte
}

// NewBufferedBody wraps data. The slice must not be modified afterwards.
func NewBufferedBody(data []byte) *BufferedBody {
	return &BufferedBody{data: data}
}

// Bytes returns the buffered body. Callers must not modify the returned slice.
func (b *BufferedBody) Bytes() []byte {
	return b.data
}

// Len returns the body length in bytes.
func (b *BufferedBody) Len() int {
	return len(b.data)
}

// Receive returns a receive function that replays the whole body.
// The first call yields the complete body in one final frame. Later calls
// report a disconnect, as the original stream does once it is exhausted.
// Every call to Receive starts a fresh replay.
func (b *BufferedBody) Receive() exchange.Receive {
	var (
		mu   sync.Mutex
		sent bool
	)
	return func(ctx context.Context) (exchange.Message, error) {
		if err := ctx.Err(); err != nil {
			return exchange.Message{}, err
		}

		mu.Lock()
		defer mu.Unlock()
		if sent {
			return exchange.Message{Type: exchange.MessageDisconnect}, nil
		}
		sent = true
		return exchange.Message{
			Type: exchange.MessageRequest,
			Body: b.data,
		}, nil
	}
}

// Reader returns an independent reader positioned at the start of the body.
func (b *BufferedBody) Reader() io.Reader {
	return bytes.NewReader(b.data)
}

// drain pulls request frames until the last one.
// A positive limit caps the body size.
func drain(ctx context.Context, receive exchange.Receive, limit int64) ([]byte, error) {
	var body []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := receive(ctx)
		if err != nil {
			return nil, err
		}

		switch msg.Type {
		case exchange.MessageDisconnect:
			return nil, ErrClientDisconnect
		case exchange.MessageRequest:
		default:
			continue
		}

		body = append(body, msg.Body...)
		if limit > 0 && int64(len(body)) > limit {
			return nil, ErrBodyTooLarge
		}
		if !msg.MoreBody {
			return body, nil
		}
	}
}
