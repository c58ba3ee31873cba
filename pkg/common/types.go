// Package common provides shared types and utilities used across the SIntercept library.
package common

import (
	"github.com/Suhaibinator/SIntercept/pkg/exchange"
)

// Middleware is a function that wraps an exchange.App.
// It allows for pre-processing and post-processing of requests.
// Middleware can be chained together to create a pipeline of request processing.
type Middleware func(exchange.App) exchange.App
