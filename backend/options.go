package backend

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Options holds per-session timeouts and sinks.
type Options struct {
	InitTimeout      time.Duration
	DiscoveryTimeout time.Duration
	CloseTimeout     time.Duration
	// Diagnostics receives the child's stderr, one tagged line at a time.
	Diagnostics io.Writer
	Logger      zerolog.Logger
}

// DefaultOptions returns the stock handshake and shutdown bounds.
func DefaultOptions() *Options {
	return &Options{
		InitTimeout:      10 * time.Second,
		DiscoveryTimeout: 15 * time.Second,
		CloseTimeout:     5 * time.Second,
		Diagnostics:      io.Discard,
		Logger:           zerolog.Nop(),
	}
}

func (o *Options) init() {
	defaults := DefaultOptions()
	if o.InitTimeout <= 0 {
		o.InitTimeout = defaults.InitTimeout
	}
	if o.DiscoveryTimeout <= 0 {
		o.DiscoveryTimeout = defaults.DiscoveryTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = defaults.CloseTimeout
	}
	if o.Diagnostics == nil {
		o.Diagnostics = defaults.Diagnostics
	}
}
