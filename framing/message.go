package framing

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Message is one JSON-RPC unit on the wire.
type Message struct {
	Jsonrpc string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error payload.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return "jsonrpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// IntID returns the numeric identifier, if the message carries one.
func (m *Message) IntID() (uint64, bool) {
	if len(m.ID) == 0 || bytes.Equal(m.ID, []byte("null")) {
		return 0, false
	}
	id, err := strconv.ParseUint(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsResponse reports whether the message is a response: no method, an id present.
func (m *Message) IsResponse() bool {
	_, ok := m.IntID()
	return m.Method == "" && ok
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// NewID encodes a numeric identifier.
func NewID(id uint64) json.RawMessage {
	return json.RawMessage(strconv.FormatUint(id, 10))
}
