package intercept

import (
	"errors"
	"fmt"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
)

var (
	// ErrParse matches every *ParseError.
	ErrParse = errors.New("intercept: parse error")

	// ErrBodyTooLarge is returned when the request body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("intercept: request body too large")

	// ErrClientDisconnect is returned when the client goes away while the body is read.
	ErrClientDisconnect = exchange.ErrDisconnected
)

// ParseError reports a request body that could not be decoded.
type ParseError struct {
	// Format is the payload format that was expected, e.g. "json" or "form".
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("intercept: invalid %s body: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
