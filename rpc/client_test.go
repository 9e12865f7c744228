package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/framing"
)

// peer is the far end of a client's pipes.
type peer struct {
	channel *framing.Channel
}

func (p *peer) read(t *testing.T) *framing.Message {
	msg, err := p.channel.ReadOne(context.Background(), time.Now().Add(2*time.Second))
	require.NoError(t, err)
	return msg
}

func (p *peer) reply(t *testing.T, id json.RawMessage, result string) {
	require.NoError(t, p.channel.Write(time.Now().Add(time.Second), &framing.Message{Jsonrpc: "2.0", ID: id, Result: json.RawMessage(result)}))
}

func newPair(t *testing.T) (*Client, *peer) {
	clientIn, peerOut := io.Pipe()
	peerIn, clientOut := io.Pipe()
	clientChannel := framing.New(clientIn, clientOut)
	peerChannel := framing.New(peerIn, peerOut)
	t.Cleanup(func() {
		_ = clientOut.Close()
		_ = peerOut.Close()
		clientChannel.Close()
		peerChannel.Close()
	})
	return New(clientChannel), &peer{channel: peerChannel}
}

func TestClient_SendRequest_IncreasingIDs(t *testing.T) {
	client, remote := newPair(t)
	go func() {
		for i := 0; i < 3; i++ {
			msg := remote.read(t)
			remote.reply(t, msg.ID, `{"ok":true}`)
		}
	}()
	for i := 1; i <= 3; i++ {
		response, err := client.SendRequest(context.Background(), "ping", nil, time.Second)
		require.NoError(t, err)
		assert.EqualValues(t, i, response.ID)
		assert.False(t, response.IsError())
	}
}

func TestClient_SendRequest_DiscardsStale(t *testing.T) {
	client, remote := newPair(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		first := remote.read(t)
		assert.Equal(t, "slow", first.Method)
		second := remote.read(t)
		// answer the abandoned call first, then a notification, then the live call
		remote.reply(t, first.ID, `{"call":"slow"}`)
		require.NoError(t, remote.channel.Write(time.Now().Add(time.Second), &framing.Message{Jsonrpc: "2.0", Method: "notifications/progress"}))
		remote.reply(t, second.ID, `{"call":"fast"}`)
	}()

	_, err := client.SendRequest(context.Background(), "slow", nil, 100*time.Millisecond)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))

	response, err := client.SendRequest(context.Background(), "fast", nil, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 2, response.ID)
	assert.JSONEq(t, `{"call":"fast"}`, string(response.Result))
	<-done
}

func TestClient_SendRequest_Concurrent(t *testing.T) {
	client, remote := newPair(t)
	const callers = 8
	seen := make(chan uint64, callers)
	go func() {
		for i := 0; i < callers; i++ {
			msg := remote.read(t)
			id, _ := msg.IntID()
			seen <- id
			// a reply for some other id precedes the real one
			remote.reply(t, framing.NewID(id+1000), `{"n":-1}`)
			remote.reply(t, msg.ID, string(msg.Params))
		}
		close(seen)
	}()

	waitGroup := sync.WaitGroup{}
	for i := 0; i < callers; i++ {
		waitGroup.Add(1)
		go func(n int) {
			defer waitGroup.Done()
			response, err := client.SendRequest(context.Background(), "echo", map[string]int{"n": n}, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, n), string(response.Result))
		}(i)
	}
	waitGroup.Wait()

	var previous uint64
	for id := range seen {
		assert.Greater(t, id, previous)
		previous = id
	}
	assert.EqualValues(t, callers, previous)
}

func TestClient_SendRequest_IdleTimeout(t *testing.T) {
	client, remote := newPair(t)
	go remote.read(t)
	started := time.Now()
	response, err := client.SendRequest(context.Background(), "tools/call", map[string]any{"name": "x"}, 200*time.Millisecond)
	elapsed := time.Since(started)
	assert.Nil(t, response)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestClient_SendRequest_RemoteError(t *testing.T) {
	client, remote := newPair(t)
	go func() {
		msg := remote.read(t)
		require.NoError(t, remote.channel.Write(time.Now().Add(time.Second), &framing.Message{Jsonrpc: "2.0", ID: msg.ID, Error: &framing.Error{Code: -32602, Message: "bad params"}}))
	}()
	response, err := client.SendRequest(context.Background(), "tools/call", nil, time.Second)
	require.NoError(t, err)
	assert.True(t, response.IsError())
	assert.Equal(t, "bad params", response.Error.Message)
	assert.Error(t, response.Decode(&map[string]any{}))
}

func TestClient_SendNotification(t *testing.T) {
	client, remote := newPair(t)
	received := make(chan *framing.Message, 1)
	go func() { received <- remote.read(t) }()
	require.NoError(t, client.SendNotification(context.Background(), "notifications/initialized", map[string]any{}))
	msg := <-received
	assert.True(t, msg.IsNotification())
	assert.Equal(t, "notifications/initialized", msg.Method)
	assert.Equal(t, "2.0", msg.Jsonrpc)
}

func TestClient_SendRequest_Canceled(t *testing.T) {
	client, remote := newPair(t)
	go remote.read(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.SendRequest(ctx, "ping", nil, 10*time.Second)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
}
