package framing

// Option configures a Channel.
type Option func(c *Channel)

// WithExitStatus sets a function reporting the peer process exit status, used in
// ChannelClosed read errors. It is called once the stream has ended, never while
// a write is in progress.
func WithExitStatus(fn func() string) Option {
	return func(c *Channel) {
		c.exitStatus = fn
	}
}

// WithMaxBodySize caps the accepted Content-Length.
func WithMaxBodySize(size int) Option {
	return func(c *Channel) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithChunkSize sets the size of a single underlying read.
func WithChunkSize(size int) Option {
	return func(c *Channel) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}
