package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/viant/amgproxy/fault"
	"golang.org/x/oauth2"
)

const (
	maxResponseSize = 32 << 20
	maxErrorBody    = 2000
)

// Tokens supplies bearer token sources keyed by AAD resource.
type Tokens interface {
	TokenSource(resource string) oauth2.TokenSource
}

// HTTPError is a non 2xx downstream reply.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if body == "" {
		body = "<empty>"
	}
	return fmt.Sprintf("HTTP %d. Body=%v", e.StatusCode, body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

type request struct {
	op       string
	url      string
	accept   string
	header   map[string]string
	tokens   Tokens
	resource string
}

func fetch(ctx context.Context, client *http.Client, r *request) ([]byte, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, r.op, err)
	}
	httpRequest.Header.Set("Accept", r.accept)
	for key, value := range r.header {
		httpRequest.Header.Set(key, value)
	}
	if r.tokens != nil {
		token, err := r.tokens.TokenSource(r.resource).Token()
		if err != nil {
			return nil, &fault.Error{Kind: fault.Unreachable, Op: r.op, Message: "failed to obtain token", Err: err}
		}
		token.SetAuthHeader(httpRequest)
	}
	response, err := client.Do(httpRequest)
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, r.op, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return nil, fault.Wrap(fault.Unreachable, r.op, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		return nil, fault.Wrap(fault.Unreachable, r.op, &HTTPError{StatusCode: response.StatusCode, Body: text})
	}
	return body, nil
}

func fetchJSON(ctx context.Context, client *http.Client, r *request) (json.RawMessage, error) {
	r.accept = "application/json"
	body, err := fetch(ctx, client, r)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(body) {
		return nil, fault.Newf(fault.Unreachable, r.op, "response was not valid JSON (%d bytes)", len(body))
	}
	return json.RawMessage(body), nil
}
