package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/fault"
	"golang.org/x/oauth2"
)

type staticTokens struct{}

func (staticTokens) TokenSource(resource string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token", TokenType: "Bearer"})
}

type recorder struct {
	mux      sync.Mutex
	requests []*http.Request
}

func (r *recorder) add(request *http.Request) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.requests = append(r.requests, request)
}

func (r *recorder) count() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.requests)
}

func (r *recorder) last() *http.Request {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.requests[len(r.requests)-1]
}

// server answers every request with status and body.
func server(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	rec := &recorder{}
	ret := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ret.Close)
	return ret, rec
}

func testConfig() Config {
	return Config{
		CallerTimeout:    10 * time.Second,
		ToolTimeout:      2 * time.Second,
		PromQueryTimeout: time.Second,
		CacheTTL:         300 * time.Second,
	}
}

func grafanaClient(endpoint string) *downstream.Grafana {
	return downstream.NewGrafana(downstream.GrafanaConfig{Endpoint: endpoint, Resource: "grafana", Timeout: time.Second, RenderTimeout: time.Second, ProxyTimeout: time.Second}, staticTokens{})
}

func TestRouter_QueryDatasource_LokiDirect(t *testing.T) {
	loki, rec := server(t, http.StatusOK, `{"status":"success","data":{"result":[]}}`)
	supervisor, factory := refusingSupervisor()
	router := New(testConfig(), supervisor, WithLoki(downstream.NewLoki(loki.URL, time.Second)))

	outcome := router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{
		"datasourceName": "Loki (grocery)",
		"expr":           `{app="cart"}`,
		"fromMs":         float64(1000),
		"toMs":           float64(2000),
		"limit":          float64(10),
	}))
	require.True(t, outcome.OK, outcome.Error)
	assert.Equal(t, SourceLokiDirect, outcome.Source)
	assert.JSONEq(t, `{"status":"success","data":{"result":[]}}`, string(outcome.Payload["result"].(json.RawMessage)))
	assert.EqualValues(t, 0, factory.calls.Load())

	query := rec.last().URL.Query()
	assert.Equal(t, `{app="cart"}`, query.Get("query"))
	assert.Equal(t, "1000000000", query.Get("start"))
	assert.Equal(t, "2000000000", query.Get("end"))
	assert.Equal(t, "10", query.Get("limit"))
}

func TestRouter_QueryDatasource_FallsThroughToSession(t *testing.T) {
	var testCases = []struct {
		description string
		loki        bool
		name        string
	}{
		{description: "loki endpoint not configured", name: "Loki (grocery)"},
		{description: "ambiguous label", loki: true, name: "loki-prometheus bridge"},
		{description: "unknown label", loki: true, name: "Azure Monitor"},
	}
	for _, testCase := range testCases {
		supervisor, factory := refusingSupervisor()
		var options []Option
		if testCase.loki {
			loki, _ := server(t, http.StatusOK, `{}`)
			options = append(options, WithLoki(downstream.NewLoki(loki.URL, time.Second)))
		}
		router := New(testConfig(), supervisor, options...)
		outcome := router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{
			"datasourceName": testCase.name, "query": "up", "fromMs": 1, "toMs": 2,
		}))
		assert.False(t, outcome.OK, testCase.description)
		assert.Equal(t, SourceSession, outcome.Source, testCase.description)
		assert.Equal(t, fault.HandshakeFailed, outcome.Kind, testCase.description)
		assert.EqualValues(t, 1, factory.calls.Load(), testCase.description)
		require.Len(t, outcome.Attempts, 1, testCase.description)
		assert.NotEmpty(t, outcome.Map()["hint"], testCase.description)
	}
}

func TestRouter_QueryDatasource_LokiFailureUsesSession(t *testing.T) {
	loki, _ := server(t, http.StatusBadRequest, `parse error`)
	supervisor, factory := fakeSupervisor(t)
	router := New(testConfig(), supervisor, WithLoki(downstream.NewLoki(loki.URL, time.Second)))

	outcome := router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{
		"datasourceName": "loki", "query": "{a=1}", "fromMs": 1, "toMs": 2, "datasourceUid": "abc",
	}))
	require.True(t, outcome.OK, outcome.Error)
	assert.Equal(t, SourceSession, outcome.Source)
	assert.EqualValues(t, 1, factory.calls.Load())
	require.Len(t, outcome.Attempts, 1)
	assert.Equal(t, SourceLokiDirect, outcome.Attempts[0].Source)
	assert.Contains(t, outcome.Attempts[0].Message, "HTTP 400")

	result := outcome.Payload["result"].(map[string]any)
	assert.Equal(t, "amgmcp_query_datasource", result["tool"])
	// only keys advertised by the tool schema are forwarded
	assert.Equal(t, map[string]any{"datasourceName": "loki", "query": "{a=1}", "from": float64(1), "to": float64(2)}, result["arguments"])
}

func TestRouter_Session_TimeoutInvalidates(t *testing.T) {
	supervisor, factory := fakeSupervisor(t)
	config := testConfig()
	config.ToolTimeout = 300 * time.Millisecond
	router := New(config, supervisor)

	outcome := router.Passthrough(context.Background(), "hang", backend.Arguments{})
	assert.False(t, outcome.OK)
	assert.Equal(t, fault.Timeout, outcome.Kind)
	assert.Contains(t, outcome.Hint, "AMG_MCP_TOOL_TIMEOUT_S")
	assert.Nil(t, supervisor.Current())

	outcome = router.Passthrough(context.Background(), ToolResourceLog, backend.Arguments{"query": "AzureActivity"})
	require.True(t, outcome.OK, outcome.Error)
	assert.EqualValues(t, 2, factory.calls.Load())
}

func TestRouter_QueryDatasource_StallsFinishBeforeCaller(t *testing.T) {
	loki := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer loki.Close()
	supervisor, _ := fakeSupervisor(t)
	config := Config{CallerTimeout: 2 * time.Second, ChainMargin: 500 * time.Millisecond, ToolTimeout: 10 * time.Second, CacheTTL: time.Minute}
	router := New(config, supervisor, WithLoki(downstream.NewLoki(loki.URL, 600*time.Millisecond)))

	started := time.Now()
	outcome := router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{
		"datasourceName": "Loki (grocery)", "query": "hang", "fromMs": 1000, "toMs": 2000,
	}))
	elapsed := time.Since(started)
	assert.False(t, outcome.OK)
	assert.Less(t, elapsed, config.CallerTimeout-config.ChainMargin/2)
	require.Len(t, outcome.Attempts, 2)
	assert.Equal(t, SourceLokiDirect, outcome.Attempts[0].Source)
	assert.Equal(t, SourceSession, outcome.Attempts[1].Source)
	assert.Equal(t, fault.Timeout, outcome.Attempts[1].Kind)
}

func TestRouter_Session_NoBudgetLeft(t *testing.T) {
	supervisor, factory := fakeSupervisor(t)
	router := New(testConfig(), supervisor)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	time.Sleep(5 * time.Millisecond)

	outcome := router.Passthrough(ctx, ToolSubscriptions, nil)
	assert.False(t, outcome.OK)
	assert.Equal(t, fault.Timeout, outcome.Kind)
	assert.EqualValues(t, 0, factory.calls.Load())
}

func TestRouter_ListDatasources_CancelledCaller(t *testing.T) {
	supervisor, _ := fakeSupervisor(t)
	router := New(testConfig(), supervisor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := router.ListDatasources(ctx)
	require.True(t, outcome.OK, outcome.Error)
	assert.Equal(t, SourceSession, outcome.Source)
	assert.NotNil(t, supervisor.Current())
}

func TestRouter_Session_RemoteErrorKeepsSession(t *testing.T) {
	supervisor, factory := fakeSupervisor(t)
	router := New(testConfig(), supervisor)

	outcome := router.Passthrough(context.Background(), "fail", backend.Arguments{})
	assert.False(t, outcome.OK)
	assert.Equal(t, fault.RemoteError, outcome.Kind)
	assert.Equal(t, "query rejected", outcome.Error)
	assert.NotNil(t, outcome.Payload["backend"])
	assert.NotNil(t, supervisor.Current())

	outcome = router.Passthrough(context.Background(), ToolSubscriptions, nil)
	require.True(t, outcome.OK, outcome.Error)
	assert.EqualValues(t, 1, factory.calls.Load())
}

func TestRouter_ListDatasources(t *testing.T) {
	t.Run("loki direct", func(t *testing.T) {
		supervisor, factory := refusingSupervisor()
		config := testConfig()
		config.PreferLokiDirectList = true
		router := New(config, supervisor, WithLoki(downstream.NewLoki("http://loki:3100", time.Second)))
		outcome := router.ListDatasources(context.Background())
		require.True(t, outcome.OK)
		assert.Equal(t, SourceLokiDirect, outcome.Source)
		assert.Equal(t, []*Datasource{{Name: "Loki (grocery)", Type: "loki", URL: "http://loki:3100"}}, outcome.Payload["datasources"])
		assert.EqualValues(t, 0, factory.calls.Load())
	})

	t.Run("session", func(t *testing.T) {
		supervisor, _ := fakeSupervisor(t)
		router := New(testConfig(), supervisor)
		outcome := router.ListDatasources(context.Background())
		require.True(t, outcome.OK, outcome.Error)
		assert.Equal(t, SourceSession, outcome.Source)
	})

	t.Run("direct fallback", func(t *testing.T) {
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor,
			WithLoki(downstream.NewLoki("http://loki:3100", time.Second)),
			WithPrometheus(downstream.NewPrometheus("https://amw", time.Second, staticTokens{})))
		outcome := router.ListDatasources(context.Background())
		require.True(t, outcome.OK)
		assert.Equal(t, SourceDirectFallback, outcome.Source)
		assert.Len(t, outcome.Payload["datasources"], 2)
		assert.Len(t, outcome.Attempts, 1)
	})

	t.Run("nothing configured", func(t *testing.T) {
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor)
		outcome := router.ListDatasources(context.Background())
		assert.False(t, outcome.OK)
		assert.Equal(t, fault.HandshakeFailed, outcome.Kind)
	})
}

func TestRouter_ListDatasources_Cache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	supervisor, factory := refusingSupervisor()
	router := New(testConfig(), supervisor, WithClock(clock),
		WithPrometheus(downstream.NewPrometheus("https://amw", time.Second, staticTokens{})))

	first := router.ListDatasources(context.Background())
	require.True(t, first.OK)
	assert.EqualValues(t, 1, factory.calls.Load())

	now = now.Add(299 * time.Second)
	assert.Same(t, first, router.ListDatasources(context.Background()))
	assert.EqualValues(t, 1, factory.calls.Load())

	now = now.Add(2 * time.Second)
	second := router.ListDatasources(context.Background())
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, factory.calls.Load())
}

func TestRouter_QueryDatasource_Prometheus(t *testing.T) {
	request := backend.Arguments{"datasourceName": "Prometheus (AMW)", "expr": "up", "fromMs": 60_000, "toMs": 120_000}

	t.Run("validation", func(t *testing.T) {
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor)
		outcome := router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{"datasourceName": "prom (x)", "fromMs": 1, "toMs": 2}))
		assert.Equal(t, fault.InvalidArgument, outcome.Kind)
		assert.Equal(t, "expr (PromQL) is required", outcome.Error)
		outcome = router.QueryDatasource(context.Background(), NewQueryRequest(backend.Arguments{"datasourceName": "prometheus", "expr": "up"}))
		assert.Equal(t, "fromMs/toMs (or startTime/endTime) are required", outcome.Error)
	})

	t.Run("grafana proxy", func(t *testing.T) {
		grafana, rec := server(t, http.StatusOK, `{"status":"success"}`)
		supervisor, _ := refusingSupervisor()
		config := testConfig()
		config.PrometheusUID = "prom-uid"
		router := New(config, supervisor, WithGrafana(grafanaClient(grafana.URL)))
		outcome := router.QueryDatasource(context.Background(), NewQueryRequest(request))
		require.True(t, outcome.OK, outcome.Error)
		assert.Equal(t, SourceGrafanaProxy, outcome.Source)
		assert.Equal(t, "prom-uid", outcome.Payload["datasourceUid"])
		assert.Equal(t, "/api/datasources/proxy/uid/prom-uid/api/v1/query_range", rec.last().URL.Path)
		assert.Equal(t, "60", rec.last().URL.Query().Get("start"))
	})

	t.Run("amw after proxy failure", func(t *testing.T) {
		grafana, _ := server(t, http.StatusForbidden, `denied`)
		amw, rec := server(t, http.StatusOK, `{"status":"success"}`)
		supervisor, factory := refusingSupervisor()
		router := New(testConfig(), supervisor,
			WithGrafana(grafanaClient(grafana.URL)),
			WithPrometheus(downstream.NewPrometheus(amw.URL, time.Second, staticTokens{})))
		args := backend.Arguments{"datasourceUid": "ds1"}
		for k, v := range request {
			args[k] = v
		}
		outcome := router.QueryDatasource(context.Background(), NewQueryRequest(args))
		require.True(t, outcome.OK, outcome.Error)
		assert.Equal(t, SourceAMWDirect, outcome.Source)
		assert.NotNil(t, outcome.Payload["grafanaProxy"])
		assert.Equal(t, "Bearer token", rec.last().Header.Get("Authorization"))
		assert.EqualValues(t, 0, factory.calls.Load())
	})

	t.Run("all strategies fail", func(t *testing.T) {
		amw, _ := server(t, http.StatusForbidden, ``)
		supervisor, factory := refusingSupervisor()
		config := testConfig()
		config.EnableBackendPrometheus = true
		router := New(config, supervisor, WithPrometheus(downstream.NewPrometheus(amw.URL, time.Second, staticTokens{})))
		outcome := router.QueryDatasource(context.Background(), NewQueryRequest(request))
		assert.False(t, outcome.OK)
		assert.Equal(t, SourcePrometheus, outcome.Source)
		assert.Equal(t, "All Prometheus query strategies failed", outcome.Error)
		assert.Equal(t, prometheusHint, outcome.Hint)
		require.Len(t, outcome.Attempts, 2)
		assert.Equal(t, SourceAMWDirect, outcome.Attempts[0].Source)
		assert.Equal(t, SourceSession, outcome.Attempts[1].Source)
		assert.EqualValues(t, 1, factory.calls.Load())
	})
}

func TestNewQueryRequest(t *testing.T) {
	var testCases = []struct {
		description string
		args        backend.Arguments
		expect      backend.Arguments
		startMs     int64
		endMs       int64
	}{
		{
			description: "query sets expr",
			args:        backend.Arguments{"datasourcename": "Loki", "query": "q", "fromms": 5, "toms": 9},
			expect:      backend.Arguments{"datasourceName": "Loki", "query": "q", "expr": "q", "from": int64(5), "startTime": int64(5), "to": int64(9), "endTime": int64(9)},
			startMs:     5,
			endMs:       9,
		},
		{
			description: "start and end override",
			args:        backend.Arguments{"datasource_uid": "u", "expr": "e", "fromMs": 5, "toMs": 9, "startTime": 6, "endtime": 8},
			expect:      backend.Arguments{"datasource_uid": "u", "query": "e", "expr": "e", "from": int64(5), "startTime": int64(6), "to": int64(9), "endTime": int64(8)},
			startMs:     5,
			endMs:       9,
		},
		{
			description: "start time only",
			args:        backend.Arguments{"query": "q", "starttime": 3, "endTime": 4},
			expect:      backend.Arguments{"query": "q", "expr": "q", "startTime": int64(3), "endTime": int64(4)},
			startMs:     3,
			endMs:       4,
		},
	}
	for _, testCase := range testCases {
		actual := NewQueryRequest(testCase.args)
		assert.Equal(t, testCase.expect, actual.Forward, testCase.description)
		require.NotNil(t, actual.StartMs, testCase.description)
		assert.Equal(t, testCase.startMs, *actual.StartMs, testCase.description)
		assert.Equal(t, testCase.endMs, *actual.EndMs, testCase.description)
	}
}

func TestQueryRequest_Labels(t *testing.T) {
	var testCases = []struct {
		name       string
		prometheus bool
		loki       bool
	}{
		{name: "Prometheus (AMW)", prometheus: true},
		{name: "prom (workspace)", prometheus: true},
		{name: "promtail"},
		{name: "Loki (grocery)", loki: true},
		{name: ""},
	}
	for _, testCase := range testCases {
		request := &QueryRequest{DatasourceName: testCase.name}
		assert.Equal(t, testCase.prometheus, request.Prometheus(), testCase.name)
		assert.Equal(t, testCase.loki, request.Loki(), testCase.name)
	}
}

func TestRouter_SearchDashboards(t *testing.T) {
	var testCases = []struct {
		description string
		query       string
		hits        int
	}{
		{description: "keywords", query: "Grocery SRE overview", hits: 1},
		{description: "exact title", query: "find grocery app - sre overview (custom) please", hits: 1},
		{description: "miss", query: "latency", hits: 0},
		{description: "empty", query: "", hits: 0},
	}
	supervisor, factory := refusingSupervisor()
	router := New(testConfig(), supervisor)
	for _, testCase := range testCases {
		outcome := router.SearchDashboards(context.Background(), testCase.query, nil)
		require.True(t, outcome.OK, testCase.description)
		assert.Equal(t, SourceFallback, outcome.Source, testCase.description)
		assert.Len(t, outcome.Payload["result"], testCase.hits, testCase.description)
	}
	assert.EqualValues(t, 0, factory.calls.Load())

	grafana, rec := server(t, http.StatusOK, `[{"uid":"x"}]`)
	config := testConfig()
	config.EnableGrafanaSearch = true
	router = New(config, supervisor, WithGrafana(grafanaClient(grafana.URL)))
	outcome := router.SearchDashboards(context.Background(), "sre", nil)
	require.True(t, outcome.OK)
	assert.Equal(t, SourceGrafanaDirect, outcome.Source)
	assert.Equal(t, "sre", rec.last().URL.Query().Get("query"))
	assert.Equal(t, "1", rec.last().Header.Get("X-Grafana-Org-Id"))
}

const testTemplate = `{"dashboard":{"title":"Grocery","templating":{"list":[{"name":"app","current":{"value":"grocery-api"}}]},
"panels":[{"type":"timeseries","title":"Error rate (errors/s)","targets":[{"refId":"A","expr":"sum(count_over_time({app=\"$app\",env=\"$env\"}[$__interval]))"}]}]}}`

func templates(t *testing.T) *dashboard.Store {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dashboard.Templates[DefaultDashboard]), []byte(testTemplate), 0o644))
	return dashboard.NewStore("file://" + dir)
}

func TestRouter_DashboardSummary(t *testing.T) {
	t.Run("grafana", func(t *testing.T) {
		grafana, rec := server(t, http.StatusOK, `{"meta":{"slug":"g"},"dashboard":{"title":"Grocery","panels":[{"id":2,"type":"stat","title":"Up"}]}}`)
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor, WithGrafana(grafanaClient(grafana.URL)))
		outcome := router.DashboardSummary(context.Background(), "")
		require.True(t, outcome.OK)
		assert.Equal(t, SourceGrafanaDirect, outcome.Source)
		assert.Equal(t, "/api/dashboards/uid/"+DefaultDashboard, rec.last().URL.Path)
		assert.Equal(t, dashboard.Info{UID: DefaultDashboard, Slug: "g", Title: "Grocery"}, outcome.Payload["dashboard"])
	})

	t.Run("template", func(t *testing.T) {
		grafana, _ := server(t, http.StatusUnauthorized, `no`)
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor, WithGrafana(grafanaClient(grafana.URL)), WithTemplates(templates(t)))
		outcome := router.DashboardSummary(context.Background(), DefaultDashboard)
		require.True(t, outcome.OK)
		assert.Equal(t, SourceTemplate, outcome.Source)
		assert.Equal(t, &dashboard.Warning{Note: dashboard.TemplateNote}, outcome.Payload["warning"])
		assert.Contains(t, outcome.Payload["grafanaError"].(map[string]any)["error"], "HTTP 401")
	})

	t.Run("both fail", func(t *testing.T) {
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor, WithTemplates(templates(t)))
		outcome := router.DashboardSummary(context.Background(), "other")
		assert.False(t, outcome.OK)
		assert.Equal(t, map[string]any{"uid": "other"}, outcome.Payload["dashboard"])
		assert.NotNil(t, outcome.Payload["fallbackError"])
		assert.Len(t, outcome.Attempts, 2)
	})
}

func TestRouter_RenderImage(t *testing.T) {
	t.Run("first panel", func(t *testing.T) {
		rec := &recorder{}
		grafana := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.add(r)
			if r.URL.Path == "/api/dashboards/uid/d1" {
				_, _ = w.Write([]byte(`{"meta":{"slug":"grocery"},"dashboard":{"panels":[{"id":1,"type":"text"},{"id":4,"type":"graph"}]}}`))
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png!"))
		}))
		defer grafana.Close()
		supervisor, _ := refusingSupervisor()
		router := New(testConfig(), supervisor, WithGrafana(grafanaClient(grafana.URL)))
		outcome := router.RenderImage(context.Background(), &RenderRequest{DashboardUID: "d1"})
		require.True(t, outcome.OK, outcome.Error)
		assert.Equal(t, SourceGrafanaDirect, outcome.Source)
		assert.Equal(t, "cG5nIQ==", outcome.Payload["imageBase64"])
		assert.Equal(t, 4, outcome.Payload["bytes"])
		assert.Equal(t, "/render/d-solo/d1/grocery", rec.last().URL.Path)
		assert.Equal(t, "4", rec.last().URL.Query().Get("panelId"))
	})

	t.Run("placeholder", func(t *testing.T) {
		supervisor, _ := refusingSupervisor()
		config := testConfig()
		config.EnablePlaceholderImage = true
		router := New(config, supervisor)
		outcome := router.RenderImage(context.Background(), &RenderRequest{DashboardUID: "d1"})
		require.True(t, outcome.OK)
		assert.Equal(t, SourcePlaceholder, outcome.Source)
		assert.Equal(t, dashboard.PlaceholderPNG, outcome.Payload["imageBase64"])
		assert.Equal(t, renderHint, outcome.Payload["warning"].(map[string]any)["hint"])
	})

	t.Run("failure", func(t *testing.T) {
		supervisor, factory := refusingSupervisor()
		config := testConfig()
		config.EnableBackendRender = true
		router := New(config, supervisor)
		outcome := router.RenderImage(context.Background(), &RenderRequest{})
		assert.False(t, outcome.OK)
		assert.Equal(t, renderHint, outcome.Hint)
		assert.Len(t, outcome.Attempts, 2)
		assert.EqualValues(t, 1, factory.calls.Load())
	})
}

func TestRouter_PanelData(t *testing.T) {
	loki, rec := server(t, http.StatusOK, `{"status":"success"}`)
	supervisor, _ := refusingSupervisor()
	now := time.UnixMilli(10_000_000)
	router := New(testConfig(), supervisor,
		WithLoki(downstream.NewLoki(loki.URL+"/loki", time.Second)),
		WithTemplates(templates(t)),
		WithClock(func() time.Time { return now }))

	outcome := router.PanelData(context.Background(), &PanelDataRequest{
		PanelTitle:   "error rate (errors/s)",
		TemplateVars: map[string]any{"env": " prod ", "blank": " "},
	})
	require.True(t, outcome.OK, outcome.Error)
	assert.Equal(t, SourceLokiDirect, outcome.Source)
	query := outcome.Payload["query"].(map[string]any)
	assert.Equal(t, `sum(count_over_time({app="grocery-api",env="prod"}[30s]))`, query["expr"])
	assert.Equal(t, int64(10_000_000-3_600_000), query["fromMs"])
	assert.Equal(t, int64(10_000_000), query["toMs"])
	assert.Equal(t, "/loki/api/v1/query_range", rec.last().URL.Path)
	assert.Equal(t, "30", rec.last().URL.Query().Get("step"))

	overridden := router.PanelData(context.Background(), &PanelDataRequest{PanelTitle: "Error rate (errors/s)", App: "cart", StepMs: ptr(60_000)})
	require.True(t, overridden.OK)
	assert.Contains(t, overridden.Payload["query"].(map[string]any)["expr"], `app="cart"`)
	assert.Contains(t, overridden.Payload["query"].(map[string]any)["expr"], `[1m]`)

	var testCases = []struct {
		description string
		request     *PanelDataRequest
		message     string
	}{
		{description: "title", request: &PanelDataRequest{}, message: "panelTitle is required"},
		{description: "window", request: &PanelDataRequest{PanelTitle: "x", FromMs: ptr(5), ToMs: ptr(5)}, message: "toMs must be > fromMs"},
		{description: "step", request: &PanelDataRequest{PanelTitle: "x", StepMs: ptr(0)}, message: "stepMs must be > 0"},
	}
	for _, testCase := range testCases {
		outcome := router.PanelData(context.Background(), testCase.request)
		assert.False(t, outcome.OK, testCase.description)
		assert.Equal(t, fault.InvalidArgument, outcome.Kind, testCase.description)
		assert.Equal(t, testCase.message, outcome.Error, testCase.description)
	}

	missing := router.PanelData(context.Background(), &PanelDataRequest{PanelTitle: "Latency"})
	assert.Equal(t, SourceTemplate, missing.Source)
	assert.Equal(t, fault.InvalidArgument, missing.Kind)
}

func ptr(v int64) *int64 {
	return &v
}

func TestOutcome_Map(t *testing.T) {
	c := &chain{}
	c.fail(SourceLokiDirect, fault.New(fault.Unreachable, "loki", "HTTP 502"))
	failure := c.failure(SourceSession, fault.New(fault.ChannelClosed, "read", "stdout closed"), map[string]any{"extra": 1})
	actual := failure.Map()
	assert.Equal(t, false, actual["ok"])
	assert.Equal(t, SourceSession, actual["source"])
	assert.Equal(t, "ChannelClosed", actual["errorType"])
	assert.Equal(t, "stdout closed", actual["error"])
	assert.Equal(t, 1, actual["extra"])
	assert.NotEmpty(t, actual["hint"])
	assert.Len(t, actual["attempts"], 1)

	success := (&chain{}).success(SourceSession, map[string]any{"ok": "ignored"}).Map()
	assert.Equal(t, map[string]any{"ok": true, "source": SourceSession}, success)
}
