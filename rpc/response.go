package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/viant/amgproxy/framing"
)

// Response is a correlated reply. A remote error is carried in Error, not
// returned as a Go error.
type Response struct {
	ID     uint64
	Result json.RawMessage
	Error  *framing.Error
}

// IsError reports whether the remote answered with an error payload.
func (r *Response) IsError() bool {
	return r.Error != nil
}

// Decode unmarshals the result into v.
func (r *Response) Decode(v any) error {
	if r.IsError() {
		return r.Error
	}
	if len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode response %d: %w", r.ID, err)
	}
	return nil
}
