package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/framing"
	"github.com/viant/jsonrpc"
)

// DefaultWriteTimeout bounds a notification write.
const DefaultWriteTimeout = 5 * time.Second

// Client sends requests and notifications over a framed channel.
type Client struct {
	channel      *framing.Channel
	sem          chan struct{}
	lastID       uint64
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// New creates a client over channel.
func New(channel *framing.Channel, options ...Option) *Client {
	ret := &Client{
		channel:      channel,
		sem:          make(chan struct{}, 1),
		writeTimeout: DefaultWriteTimeout,
		logger:       zerolog.Nop(),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// SendNotification writes a message with no identifier.
func (c *Client) SendNotification(ctx context.Context, method string, params any) error {
	deadline := time.Now().Add(c.writeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	raw, err := encodeParams(method, params)
	if err != nil {
		return err
	}
	if err = c.acquire(ctx, deadline, method); err != nil {
		return err
	}
	defer c.release()
	return c.channel.Write(deadline, &framing.Message{Jsonrpc: jsonrpc.Version, Method: method, Params: raw})
}

// SendRequest writes a request with the next identifier and waits for the
// response carrying it. The timeout covers queueing behind other callers, the
// write and the wait.
func (c *Client) SendRequest(ctx context.Context, method string, params any, timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	raw, err := encodeParams(method, params)
	if err != nil {
		return nil, err
	}
	if err = c.acquire(ctx, deadline, method); err != nil {
		return nil, err
	}
	defer c.release()

	c.lastID++
	id := c.lastID
	request := &framing.Message{Jsonrpc: jsonrpc.Version, ID: framing.NewID(id), Method: method, Params: raw}
	if err = c.channel.Write(deadline, request); err != nil {
		return nil, c.requestError(method, id, err)
	}
	for {
		msg, err := c.channel.ReadOne(ctx, deadline)
		if err != nil {
			return nil, c.requestError(method, id, err)
		}
		if !msg.IsResponse() {
			c.logger.Debug().Str("method", msg.Method).Msg("discarding notification while awaiting response")
			continue
		}
		msgID, _ := msg.IntID()
		if msgID != id {
			c.logger.Debug().Uint64("id", msgID).Uint64("awaiting", id).Msg("discarding stale response")
			continue
		}
		return &Response{ID: id, Result: msg.Result, Error: msg.Error}, nil
	}
}

func (c *Client) acquire(ctx context.Context, deadline time.Time, method string) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fault.New(fault.Timeout, method, "timed out waiting for channel access")
	case <-ctx.Done():
		return &fault.Error{Kind: fault.Timeout, Op: method, Message: "gave up waiting for channel access", Err: ctx.Err()}
	}
}

func (c *Client) release() {
	<-c.sem
}

func (c *Client) requestError(method string, id uint64, err error) error {
	return &fault.Error{Kind: fault.KindOf(err), Op: method, Message: fmt.Sprintf("request %d", id), Err: err}
}

func encodeParams(method string, params any) (json.RawMessage, error) {
	switch actual := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return actual, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fault.Wrap(fault.InvalidArgument, method, fmt.Errorf("failed to encode params: %w", err))
	}
	return raw, nil
}
