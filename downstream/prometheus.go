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

// PrometheusResource is the AAD resource for workspace queries.
const PrometheusResource = "https://prometheus.monitor.azure.com"

// RangeQuery is a PromQL query_range request. Times are epoch milliseconds and
// are sent as whole seconds.
type RangeQuery struct {
	Expr    string
	StartMs int64
	EndMs   int64
	Step    int
}

func (q *RangeQuery) values() url.Values {
	step := q.Step
	if step < 1 {
		step = 1
	}
	ret := url.Values{}
	ret.Set("query", q.Expr)
	ret.Set("start", strconv.FormatInt(max(0, q.StartMs/1000), 10))
	ret.Set("end", strconv.FormatInt(max(0, q.EndMs/1000), 10))
	ret.Set("step", strconv.Itoa(step))
	return ret
}

// Prometheus queries an Azure Monitor workspace endpoint with a managed
// identity token.
type Prometheus struct {
	endpoint string
	client   *http.Client
	tokens   Tokens
}

// NewPrometheus creates a client; an empty endpoint leaves it unconfigured.
func NewPrometheus(endpoint string, timeout time.Duration, tokens Tokens) *Prometheus {
	return &Prometheus{endpoint: strings.TrimRight(endpoint, "/"), client: &http.Client{Timeout: timeout}, tokens: tokens}
}

// Configured reports whether an endpoint is set.
func (p *Prometheus) Configured() bool {
	return p != nil && p.endpoint != ""
}

// Endpoint returns the configured base URL.
func (p *Prometheus) Endpoint() string {
	return p.endpoint
}

// QueryRange runs /api/v1/query_range.
func (p *Prometheus) QueryRange(ctx context.Context, query *RangeQuery) (json.RawMessage, error) {
	if !p.Configured() {
		return nil, fault.New(fault.Unreachable, "amw", "AMW_QUERY_ENDPOINT is not set")
	}
	return fetchJSON(ctx, p.client, &request{
		op:       "amw",
		url:      p.endpoint + "/api/v1/query_range?" + query.values().Encode(),
		tokens:   p.tokens,
		resource: PrometheusResource,
	})
}
