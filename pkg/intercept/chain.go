package intercept

import (
	"context"

	"github.com/Suhaibinator/SIntercept/pkg/exchange"
	"go.uber.org/multierr"
)

// startedKey records how many interceptors of one chain ran BeforeRequest.
// It is keyed by chain so nested chains keep separate counts.
type startedKey struct {
	c *chain
}

// chain runs several interceptors as one, sharing a single Request.
type chain struct {
	interceptors []Interceptor
}

// Chain combines interceptors into one. They behave as if each wrapped the next:
// BeforeRequest runs in order and stops at the first override or error,
// AfterRequest runs in reverse order for every interceptor whose BeforeRequest
// ran, and frames pass through Send from the last of those to the first.
func Chain(interceptors ...Interceptor) Interceptor {
	return &chain{interceptors: interceptors}
}

func (c *chain) BeforeRequest(ctx context.Context, req *Request) (Result, error) {
	for i, ic := range c.interceptors {
		req.Set(startedKey{c}, i+1)

		result, err := ic.BeforeRequest(ctx, req)
		if err != nil {
			// Interceptors that already ran still get their AfterRequest,
			// as they would if they were stacked middlewares.
			req.Set(startedKey{c}, i)
			return result, multierr.Append(err, c.AfterRequest(ctx, req))
		}
		if result.Overridden() {
			return result, nil
		}
	}
	return Continue(), nil
}

// started returns how many interceptors ran BeforeRequest. Without a record
// every interceptor counts as started.
func (c *chain) started(req *Request) int {
	if v, ok := req.Get(startedKey{c}); ok {
		return v.(int)
	}
	return len(c.interceptors)
}

func (c *chain) AfterRequest(ctx context.Context, req *Request) error {
	var err error
	for i := c.started(req) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.interceptors[i].AfterRequest(ctx, req))
	}
	return err
}

func (c *chain) Send(ctx context.Context, req *Request, msg exchange.Message, next exchange.Send) error {
	send := next
	for _, ic := range c.interceptors[:c.started(req)] {
		ic, outer := ic, send
		send = func(ctx context.Context, msg exchange.Message) error {
			return ic.Send(ctx, req, msg, outer)
		}
	}
	return send(ctx, msg)
}
