package rpc

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Client.
type Option func(c *Client)

// WithLogger sets the logger used for discarded messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithWriteTimeout bounds a notification write when ctx carries no deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}
