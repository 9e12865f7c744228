package downstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/viant/amgproxy/fault"
)

// LokiQuery is a query_range request. Times are epoch milliseconds.
type LokiQuery struct {
	Query   string
	StartMs int64
	EndMs   int64
	Limit   *int64
	// Step in seconds, fractional values allowed.
	Step *float64
}

// Loki queries a Loki endpoint directly, without authentication.
type Loki struct {
	endpoint string
	client   *http.Client
}

// NewLoki creates a client; an empty endpoint leaves it unconfigured.
func NewLoki(endpoint string, timeout time.Duration) *Loki {
	return &Loki{endpoint: strings.TrimRight(endpoint, "/"), client: &http.Client{Timeout: timeout}}
}

// Configured reports whether an endpoint is set.
func (l *Loki) Configured() bool {
	return l != nil && l.endpoint != ""
}

// Endpoint returns the configured base URL.
func (l *Loki) Endpoint() string {
	return l.endpoint
}

// QueryRange runs query_range. A base ending in /loki is used as is; otherwise
// /loki is appended.
func (l *Loki) QueryRange(ctx context.Context, query *LokiQuery) (json.RawMessage, error) {
	if !l.Configured() {
		return nil, fault.New(fault.Unreachable, "loki", "LOKI_ENDPOINT is not set")
	}
	params := url.Values{}
	params.Set("query", query.Query)
	params.Set("start", strconv.FormatInt(query.StartMs*1_000_000, 10))
	params.Set("end", strconv.FormatInt(query.EndMs*1_000_000, 10))
	if query.Limit != nil {
		params.Set("limit", strconv.FormatInt(*query.Limit, 10))
	}
	if query.Step != nil {
		params.Set("step", strconv.FormatFloat(*query.Step, 'f', -1, 64))
	}
	target := l.endpoint + "/loki/api/v1/query_range"
	if strings.HasSuffix(l.endpoint, "/loki") {
		target = l.endpoint + "/api/v1/query_range"
	}
	result, err := fetchJSON(ctx, l.client, &request{op: "loki", url: target + "?" + params.Encode()})
	if err != nil {
		return nil, &fault.Error{Kind: fault.Unreachable, Op: "loki", Message: "Loki query_range failed for query " + query.Query, Err: err}
	}
	return result, nil
}
