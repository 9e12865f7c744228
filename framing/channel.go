package framing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viant/amgproxy/fault"
)

const (
	// DefaultMaxBodySize caps a declared Content-Length.
	DefaultMaxBodySize = 64 << 20
	// DefaultChunkSize is the size of a single read from the underlying stream.
	DefaultChunkSize = 4096
	maxHeaderSize    = 8 << 10
	headerName       = "content-length:"
)

type readState int

const (
	awaitingHeader readState = iota
	awaitingBody
)

// Channel reads and writes Content-Length framed messages over a byte stream.
//
// Reads are served by a single pump goroutine which forwards whatever the stream
// returns; ReadOne waits on that pump with an explicit deadline, so the caller never
// blocks on a stream that has no native read timeout. Bytes read past a message
// boundary stay buffered for the next ReadOne.
type Channel struct {
	writer      io.Writer
	writeMux    sync.Mutex
	chunks      chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	readErr     error
	exitStatus  func() string
	maxBodySize int
	chunkSize   int

	buffer  []byte
	state   readState
	bodyLen int
}

// New creates a channel reading from r and writing to w.
func New(r io.Reader, w io.Writer, options ...Option) *Channel {
	ret := &Channel{
		writer:      w,
		chunks:      make(chan []byte, 16),
		done:        make(chan struct{}),
		maxBodySize: DefaultMaxBodySize,
		chunkSize:   DefaultChunkSize,
	}
	for _, option := range options {
		option(ret)
	}
	go ret.pump(r)
	return ret
}

func (c *Channel) pump(r io.Reader) {
	defer close(c.chunks)
	for {
		chunk := make([]byte, c.chunkSize)
		n, err := r.Read(chunk)
		if n > 0 {
			select {
			case c.chunks <- chunk[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Close stops the read pump. It does not close the underlying streams.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Write encodes msg compactly and writes it as one frame.
func (c *Channel) Write(deadline time.Time, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fault.Wrap(fault.Framing, "write", fmt.Errorf("failed to encode message: %w", err))
	}
	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)

	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	if err = c.write(deadline, frame); err != nil {
		return err
	}
	if flusher, ok := c.writer.(interface{ Flush() error }); ok {
		if err = flusher.Flush(); err != nil {
			return c.writeError(err)
		}
	}
	return nil
}

func (c *Channel) write(deadline time.Time, frame []byte) error {
	if setter, ok := c.writer.(interface{ SetWriteDeadline(time.Time) error }); ok && !deadline.IsZero() {
		if setter.SetWriteDeadline(deadline) == nil {
			defer setter.SetWriteDeadline(time.Time{})
			_, err := c.writer.Write(frame)
			return c.writeError(err)
		}
	}
	if deadline.IsZero() {
		_, err := c.writer.Write(frame)
		return c.writeError(err)
	}
	result := make(chan error, 1)
	go func() {
		_, err := c.writer.Write(frame)
		result <- err
	}()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case err := <-result:
		return c.writeError(err)
	case <-timer.C:
		return fault.New(fault.Timeout, "write", "timed out writing frame")
	}
}

func (c *Channel) writeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fault.Wrap(fault.Timeout, "write", err)
	}
	return &fault.Error{Kind: fault.ChannelClosed, Op: "write", Message: "peer input closed", Err: err}
}

// ReadOne returns the next complete message. It fails with fault.Timeout when the
// deadline elapses first, fault.ChannelClosed when the stream ends first, and
// fault.Framing when the frame is malformed. A zero deadline waits on ctx only.
func (c *Channel) ReadOne(ctx context.Context, deadline time.Time) (*Message, error) {
	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}
	for {
		msg, err := c.next()
		if err != nil || msg != nil {
			return msg, err
		}
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return nil, c.closedError()
			}
			c.buffer = append(c.buffer, chunk...)
		case <-expired:
			return nil, fault.New(fault.Timeout, "read", "timed out waiting for "+c.describeState())
		case <-ctx.Done():
			return nil, &fault.Error{Kind: fault.Timeout, Op: "read", Message: "gave up waiting for " + c.describeState(), Err: ctx.Err()}
		}
	}
}

// next advances the read state machine over the buffered bytes. It returns nil,
// nil when more bytes are needed.
func (c *Channel) next() (*Message, error) {
	if c.state == awaitingHeader {
		end, sepLen := findSeparator(c.buffer)
		if end < 0 {
			if len(c.buffer) > maxHeaderSize {
				return nil, fault.Newf(fault.Framing, "read", "no header separator within %d bytes", maxHeaderSize)
			}
			return nil, nil
		}
		length, err := contentLength(c.buffer[:end], c.maxBodySize)
		if err != nil {
			return nil, err
		}
		c.buffer = c.buffer[end+sepLen:]
		c.bodyLen = length
		c.state = awaitingBody
	}
	if len(c.buffer) < c.bodyLen {
		return nil, nil
	}
	body := c.buffer[:c.bodyLen]
	msg := &Message{}
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, fault.Wrap(fault.Framing, "read", fmt.Errorf("failed to decode %d byte body: %w", c.bodyLen, err))
	}
	rest := c.buffer[c.bodyLen:]
	c.buffer = append(make([]byte, 0, len(rest)), rest...)
	c.state = awaitingHeader
	c.bodyLen = 0
	return msg, nil
}

func (c *Channel) describeState() string {
	if c.state == awaitingBody {
		return fmt.Sprintf("body (%d of %d bytes)", len(c.buffer), c.bodyLen)
	}
	return "headers"
}

func (c *Channel) closedError() error {
	message := "stdout closed"
	if c.state == awaitingBody {
		message += " while reading body"
	}
	message += " (exit status: " + c.status() + ")"
	ret := &fault.Error{Kind: fault.ChannelClosed, Op: "read", Message: message}
	if c.readErr != nil && !errors.Is(c.readErr, io.EOF) {
		ret.Err = c.readErr
	}
	return ret
}

func (c *Channel) status() string {
	if c.exitStatus == nil {
		return "unknown"
	}
	return c.exitStatus()
}

// findSeparator locates the earliest header terminator, accepting CRLF and bare
// LF framing.
func findSeparator(data []byte) (int, int) {
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	lf := bytes.Index(data, []byte("\n\n"))
	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case crlf < 0:
		return lf, 2
	case lf < 0 || crlf < lf:
		return crlf, 4
	default:
		return lf, 2
	}
}

func contentLength(header []byte, maxBodySize int) (int, error) {
	normalized := strings.ReplaceAll(string(header), "\r\n", "\n")
	for _, line := range strings.Split(normalized, "\n") {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), headerName) {
			continue
		}
		value := strings.TrimSpace(line[strings.Index(line, ":")+1:])
		length, err := strconv.Atoi(value)
		if err != nil {
			return 0, fault.Newf(fault.Framing, "read", "invalid Content-Length %q", value)
		}
		if length < 0 || length > maxBodySize {
			return 0, fault.Newf(fault.Framing, "read", "Content-Length %d out of range", length)
		}
		return length, nil
	}
	return 0, fault.Newf(fault.Framing, "read", "missing Content-Length header: %q", string(header))
}
