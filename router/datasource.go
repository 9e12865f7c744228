package router

import (
	"context"
	"strings"

	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/internal/conv"
)

const (
	lokiDatasourceName       = "Loki (grocery)"
	prometheusDatasourceName = "Prometheus (AMW)"
	prometheusStep           = 60
	prometheusHint           = "If AMW direct returns HTTP 403, ensure the proxy's managed identity has 'Monitoring Data Reader' on the Azure Monitor workspace and allow time for RBAC propagation."
)

// Datasource is one synthetic datasource list entry.
type Datasource struct {
	Name string `json:"name"`
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ListDatasources returns the datasource list. Concurrent cache misses share one
// lookup.
func (r *Router) ListDatasources(ctx context.Context) *Outcome {
	if cached, age, ok := r.cache.Get(datasourcesKey); ok {
		r.logger.Debug().Dur("age", age).Msg("datasource list served from cache")
		return cached
	}
	value, _, _ := r.group.Do(datasourcesKey, func() (any, error) {
		// shared by every waiter, so one caller going away must not cancel it
		ctx, cancel := r.bounded(context.WithoutCancel(ctx))
		defer cancel()
		ret := r.listDatasources(ctx)
		if ret.OK {
			r.cache.Put(datasourcesKey, ret)
		}
		return ret, nil
	})
	return value.(*Outcome)
}

func (r *Router) listDatasources(ctx context.Context) *Outcome {
	c := &chain{}
	if r.loki.Configured() && r.config.PreferLokiDirectList {
		return c.success(SourceLokiDirect, map[string]any{"datasources": []*Datasource{r.lokiDatasource()}})
	}
	if ret, done := r.sessionTier(ctx, c, "amgmcp_datasource_list", backend.Arguments{}, r.config.ToolTimeout); done {
		return ret
	}
	err := c.last
	if fault.SessionFatal(err) || fault.KindOf(err) == fault.HandshakeFailed {
		var datasources []*Datasource
		if r.loki.Configured() {
			datasources = append(datasources, r.lokiDatasource())
		}
		if r.prometheus.Configured() {
			datasources = append(datasources, &Datasource{Name: prometheusDatasourceName, Type: "prometheus", URL: r.prometheus.Endpoint()})
		}
		if len(datasources) > 0 {
			return c.success(SourceDirectFallback, map[string]any{"datasources": datasources})
		}
	}
	return c.failure(SourceSession, err, nil)
}

func (r *Router) lokiDatasource() *Datasource {
	return &Datasource{Name: lokiDatasourceName, Type: "loki", URL: r.loki.Endpoint()}
}

// QueryRequest is a normalised query_datasource call.
type QueryRequest struct {
	DatasourceUID  string
	DatasourceName string
	Expr           string
	StartMs        *int64
	EndMs          *int64
	Limit          *int64
	// Forward holds the arguments sent to amg-mcp, under every alias it may
	// accept.
	Forward backend.Arguments
}

// NewQueryRequest normalises inbound arguments given under any accepted alias.
func NewQueryRequest(args backend.Arguments) *QueryRequest {
	ret := &QueryRequest{Forward: backend.Arguments{}}
	for _, key := range []string{"datasourceUid", "datasourceUID", "datasource_uid"} {
		if value, ok := args[key]; ok && value != nil {
			ret.Forward[key] = value
		}
	}
	ret.DatasourceUID = conv.FirstString(args, "datasourceUid", "datasourceUID", "datasource_uid")
	if name, ok := first(args, "datasourceName", "datasourcename"); ok {
		ret.Forward["datasourceName"] = name
		ret.DatasourceName, _ = conv.AsString(name)
	}
	for _, key := range []string{"query", "expr"} {
		if value, ok := args[key]; ok && value != nil {
			ret.Forward[key] = value
		}
	}
	if expr := conv.FirstString(args, "query", "expr"); expr != "" {
		ret.Expr = expr
		setDefault(ret.Forward, "query", expr)
		setDefault(ret.Forward, "expr", expr)
	}
	if limit, ok := conv.FirstInt64(args, "limit"); ok {
		ret.Limit = &limit
		ret.Forward["limit"] = limit
	}
	if from, ok := conv.FirstInt64(args, "fromMs", "fromms"); ok {
		ret.StartMs = &from
		ret.Forward["from"] = from
		ret.Forward["startTime"] = from
	}
	if to, ok := conv.FirstInt64(args, "toMs", "toms"); ok {
		ret.EndMs = &to
		ret.Forward["to"] = to
		ret.Forward["endTime"] = to
	}
	if start, ok := conv.FirstInt64(args, "startTime", "starttime"); ok {
		ret.Forward["startTime"] = start
		if ret.StartMs == nil {
			ret.StartMs = &start
		}
	}
	if end, ok := conv.FirstInt64(args, "endTime", "endtime"); ok {
		ret.Forward["endTime"] = end
		if ret.EndMs == nil {
			ret.EndMs = &end
		}
	}
	return ret
}

// Prometheus reports whether the datasource name designates Prometheus.
func (q *QueryRequest) Prometheus() bool {
	name := strings.ToLower(strings.TrimSpace(q.DatasourceName))
	return strings.Contains(name, "prometheus") || strings.HasPrefix(name, "prom (")
}

// Loki reports whether the datasource name designates Loki.
func (q *QueryRequest) Loki() bool {
	return strings.Contains(strings.ToLower(q.DatasourceName), "loki")
}

// QueryDatasource runs a time range query.
func (r *Router) QueryDatasource(ctx context.Context, query *QueryRequest) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	prometheus, loki := query.Prometheus(), query.Loki()
	switch {
	case prometheus && !loki:
		return r.queryPrometheus(ctx, query)
	case loki && !prometheus && r.loki.Configured():
		return r.queryLoki(ctx, query)
	}
	c := &chain{}
	if ret, done := r.sessionTier(ctx, c, "amgmcp_query_datasource", query.Forward, r.config.ToolTimeout); done {
		return ret
	}
	return c.failure(SourceSession, c.last, nil)
}

func (r *Router) queryPrometheus(ctx context.Context, query *QueryRequest) *Outcome {
	if query.Expr == "" {
		return invalid(SourcePrometheus, "expr (PromQL) is required")
	}
	if query.StartMs == nil || query.EndMs == nil {
		return invalid(SourcePrometheus, "fromMs/toMs (or startTime/endTime) are required")
	}
	rangeQuery := &downstream.RangeQuery{Expr: query.Expr, StartMs: *query.StartMs, EndMs: *query.EndMs, Step: prometheusStep}
	c := &chain{}
	payload := map[string]any{}
	uid := query.DatasourceUID
	if uid == "" {
		uid = r.config.PrometheusUID
	}
	if uid != "" && r.grafana.Configured() {
		result, err := r.grafana.PromQueryRange(ctx, uid, rangeQuery)
		if err == nil {
			return c.success(SourceGrafanaProxy, map[string]any{"datasourceUid": uid, "result": result})
		}
		c.fail(SourceGrafanaProxy, err)
		payload["grafanaProxy"] = errorInfo(err)
	}
	if r.prometheus.Configured() {
		result, err := r.prometheus.QueryRange(ctx, rangeQuery)
		if err == nil {
			return c.success(SourceAMWDirect, map[string]any{"result": result, "grafanaProxy": payload["grafanaProxy"]})
		}
		c.fail(SourceAMWDirect, err)
		payload["amw"] = errorInfo(err)
	}
	if r.config.EnableBackendPrometheus {
		ret, done := r.sessionTier(ctx, c, "amgmcp_query_datasource", query.Forward, r.config.PromQueryTimeout)
		if done && ret.OK {
			return ret
		}
		if ret != nil {
			payload["backend"] = ret.Map()
		}
	}
	ret := c.failure(SourcePrometheus, fault.New(fault.Unreachable, SourcePrometheus, "All Prometheus query strategies failed"), payload)
	ret.Hint = prometheusHint
	return ret
}

func (r *Router) queryLoki(ctx context.Context, query *QueryRequest) *Outcome {
	if query.Expr == "" {
		return invalid(SourceLokiDirect, "query is required")
	}
	if query.StartMs == nil || query.EndMs == nil {
		return invalid(SourceLokiDirect, "fromMs/toMs (or startTime/endTime) are required")
	}
	c := &chain{}
	result, err := r.loki.QueryRange(ctx, &downstream.LokiQuery{Query: query.Expr, StartMs: *query.StartMs, EndMs: *query.EndMs, Limit: query.Limit})
	if err == nil {
		return c.success(SourceLokiDirect, map[string]any{"result": result})
	}
	c.fail(SourceLokiDirect, err)
	if ret, done := r.sessionTier(ctx, c, "amgmcp_query_datasource", query.Forward, r.config.ToolTimeout); done {
		return ret
	}
	return c.failure(SourceSession, c.last, nil)
}

func first(args backend.Arguments, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := args[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func setDefault(args backend.Arguments, key string, value any) {
	if _, ok := args[key]; !ok {
		args[key] = value
	}
}
