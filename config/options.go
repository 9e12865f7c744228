package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Options groups all proxy settings. Timeouts are whole seconds.
type Options struct {
	Host     string `long:"host" env:"HOST" default:"0.0.0.0" description:"listen host"`
	Port     int    `short:"p" long:"port" env:"PORT" default:"8000" description:"listen port"`
	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"log level"`

	GrafanaEndpoint   string `long:"grafana-endpoint" env:"GRAFANA_ENDPOINT" description:"Azure Managed Grafana endpoint"`
	GrafanaResource   string `long:"grafana-resource" env:"GRAFANA_AAD_RESOURCE" default:"https://grafana.azure.com" description:"AAD resource for Grafana tokens"`
	GrafanaOrgID      int    `long:"grafana-org-id" env:"GRAFANA_ORG_ID" default:"1" description:"Grafana organisation id"`
	GrafanaTimeout    int    `long:"grafana-timeout" env:"GRAFANA_HTTP_TIMEOUT_S" default:"15" description:"Grafana API timeout"`
	RenderTimeout     int    `long:"render-timeout" env:"GRAFANA_RENDER_TIMEOUT_S" default:"15" description:"Grafana render timeout"`
	DefaultDashboard  string `long:"default-dashboard" env:"DEFAULT_GROCERY_SRE_DASHBOARD_UID" default:"afbppudwbhl34b" description:"default dashboard uid"`
	DashboardTemplate string `long:"dashboard-templates" env:"DASHBOARD_TEMPLATES" default:"file:///app/grafana" description:"baked-in dashboard template location"`

	Binary           string `long:"amg-mcp" env:"AMG_MCP_BINARY" default:"/usr/local/bin/amg-mcp" description:"amg-mcp binary"`
	InitTimeout      int    `long:"init-timeout" env:"AMG_MCP_INIT_TIMEOUT_S" default:"10" description:"initialize timeout"`
	DiscoveryTimeout int    `long:"tools-list-timeout" env:"AMG_MCP_TOOLS_LIST_TIMEOUT_S" default:"15" description:"tools/list timeout"`
	ToolTimeout      int    `long:"tool-timeout" env:"AMG_MCP_TOOL_TIMEOUT_S" default:"30" description:"tools/call timeout"`
	PromQueryTimeout int    `long:"prom-query-timeout" env:"AMG_MCP_PROM_QUERY_TIMEOUT_S" default:"10" description:"backend Prometheus query timeout"`
	CloseTimeout     int    `long:"close-timeout" env:"AMG_MCP_CLOSE_TIMEOUT_S" default:"5" description:"child shutdown grace period"`
	CallerTimeout    int    `long:"caller-timeout" env:"CALLER_TIMEOUT_S" default:"100" description:"upper bound of one inbound tool call"`
	CallerMargin     int    `long:"caller-margin" env:"CALLER_MARGIN_S" default:"5" description:"part of the caller timeout kept free of fallback attempts"`
	CacheTTL         int    `long:"datasource-cache-ttl" env:"DATASOURCE_LIST_CACHE_TTL_S" default:"300" description:"datasource list cache ttl, 0 disables"`

	LokiEndpoint        string `long:"loki-endpoint" env:"LOKI_ENDPOINT" description:"direct Loki endpoint"`
	LokiTimeout         int    `long:"loki-timeout" env:"LOKI_HTTP_TIMEOUT_S" default:"15" description:"Loki timeout"`
	AMWEndpoint         string `long:"amw-endpoint" env:"AMW_QUERY_ENDPOINT" description:"Azure Monitor workspace query endpoint"`
	AMWTimeout          int    `long:"amw-timeout" env:"AMW_PROMQL_TIMEOUT_S" default:"15" description:"AMW PromQL timeout"`
	PrometheusUID       string `long:"prometheus-uid" env:"PROMETHEUS_DATASOURCE_UID" description:"default Grafana Prometheus datasource uid"`
	GrafanaProxyTimeout int    `long:"prom-proxy-timeout" env:"PROM_GRAFANA_PROXY_TIMEOUT_S" default:"10" description:"Grafana datasource proxy timeout"`

	IdentityEndpoint string `long:"identity-endpoint" env:"IDENTITY_ENDPOINT" description:"managed identity endpoint"`
	IdentityHeader   string `long:"identity-header" env:"IDENTITY_HEADER" description:"managed identity secret header"`
	ClientID         string `long:"client-id" env:"AZURE_CLIENT_ID" description:"user assigned identity client id"`

	PreferLokiDirectList    string `long:"prefer-loki-list" env:"PREFER_LOKI_DIRECT_DATASOURCE_LIST" default:"true" description:"answer datasource list from Loki config"`
	EnableBackendPrometheus string `long:"backend-prometheus" env:"ENABLE_BACKEND_PROMETHEUS" default:"false" description:"allow amg-mcp for Prometheus queries"`
	EnableGrafanaSearch     string `long:"grafana-search" env:"ENABLE_GRAFANA_DIRECT_SEARCH" default:"false" description:"search dashboards through the Grafana API"`
	EnableBackendSearch     string `long:"backend-search" env:"ENABLE_BACKEND_DASHBOARD_SEARCH" default:"false" description:"search dashboards through amg-mcp"`
	EnablePlaceholderImage  string `long:"placeholder-image" env:"ENABLE_PLACEHOLDER_IMAGE_RENDER" default:"true" description:"return a placeholder image when rendering fails"`
	EnableBackendRender     string `long:"backend-render" env:"ENABLE_AMG_MCP_RENDER_FALLBACK" default:"false" description:"render through amg-mcp when Grafana rejects render"`
	RenderFullDashboard     string `long:"render-full-dashboard" env:"GRAFANA_RENDER_FULL_DASHBOARD" default:"false" description:"render the whole dashboard when no panel is given"`
	EnableAzureTools        string `long:"azure-tools" env:"ENABLE_AMGMCP_AZURE_TOOLS" default:"false" description:"expose amg-mcp Azure resource tools"`
	DisableWarmup           string `long:"disable-warmup" env:"DISABLE_BACKEND_WARMUP" default:"false" description:"skip starting amg-mcp at boot"`
}

// Parse reads options from args and the environment.
func Parse(args []string) (*Options, error) {
	ret := &Options{}
	if _, err := flags.ParseArgs(ret, args); err != nil {
		return nil, err
	}
	ret.Init()
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Init normalises endpoints.
func (o *Options) Init() {
	o.GrafanaEndpoint = strings.TrimRight(strings.TrimSpace(o.GrafanaEndpoint), "/")
	o.LokiEndpoint = strings.TrimRight(strings.TrimSpace(o.LokiEndpoint), "/")
	o.AMWEndpoint = strings.TrimRight(strings.TrimSpace(o.AMWEndpoint), "/")
	o.PrometheusUID = strings.TrimSpace(o.PrometheusUID)
	o.IdentityEndpoint = strings.TrimSpace(o.IdentityEndpoint)
	o.ClientID = strings.TrimSpace(o.ClientID)
}

// Validate checks that every fallback chain, including a cold amg-mcp start,
// finishes within CALLER_TIMEOUT_S less CALLER_MARGIN_S.
func (o *Options) Validate() error {
	if o.GrafanaEndpoint == "" {
		return fmt.Errorf("grafana endpoint was empty: set GRAFANA_ENDPOINT")
	}
	if o.CallerTimeout <= 0 {
		return fmt.Errorf("invalid caller timeout: %v", o.CallerTimeout)
	}
	if o.CallerMargin <= 0 || o.CallerMargin >= o.CallerTimeout {
		return fmt.Errorf("CALLER_MARGIN_S (%vs) must be positive and below CALLER_TIMEOUT_S (%vs)", o.CallerMargin, o.CallerTimeout)
	}
	attempts := map[string]int{
		"AMG_MCP_INIT_TIMEOUT_S":       o.InitTimeout,
		"AMG_MCP_TOOLS_LIST_TIMEOUT_S": o.DiscoveryTimeout,
		"AMG_MCP_TOOL_TIMEOUT_S":       o.ToolTimeout,
		"AMG_MCP_PROM_QUERY_TIMEOUT_S": o.PromQueryTimeout,
		"LOKI_HTTP_TIMEOUT_S":          o.LokiTimeout,
		"AMW_PROMQL_TIMEOUT_S":         o.AMWTimeout,
		"PROM_GRAFANA_PROXY_TIMEOUT_S": o.GrafanaProxyTimeout,
		"GRAFANA_HTTP_TIMEOUT_S":       o.GrafanaTimeout,
		"GRAFANA_RENDER_TIMEOUT_S":     o.RenderTimeout,
	}
	for name, seconds := range attempts {
		if seconds <= 0 {
			return fmt.Errorf("%v must be positive, got %v", name, seconds)
		}
	}
	budget := o.CallerTimeout - o.CallerMargin
	for _, chain := range o.Chains() {
		if chain.Seconds > budget {
			return fmt.Errorf("%v chain (%vs) must fit within CALLER_TIMEOUT_S - CALLER_MARGIN_S (%vs)", chain.Name, chain.Seconds, budget)
		}
	}
	return nil
}

// Chain is the worst case duration of one fallback chain.
type Chain struct {
	Name    string
	Seconds int
}

// Chains returns the worst case of every fallback chain enabled by the options.
// A session tier counts a cold start: initialize plus tools/list plus the call.
func (o *Options) Chains() []*Chain {
	cold := o.InitTimeout + o.DiscoveryTimeout
	session := cold + o.ToolTimeout
	prometheus := o.GrafanaProxyTimeout + o.AMWTimeout
	if Enabled(o.EnableBackendPrometheus) {
		prometheus += cold + o.PromQueryTimeout
	}
	search := 0
	if Enabled(o.EnableGrafanaSearch) {
		search += o.GrafanaTimeout
	}
	if Enabled(o.EnableBackendSearch) {
		search += session
	}
	render := o.GrafanaTimeout + o.RenderTimeout
	if Enabled(o.EnableBackendRender) {
		render += session
	}
	return []*Chain{
		{Name: "datasource list", Seconds: session},
		{Name: "loki query", Seconds: o.LokiTimeout + session},
		{Name: "prometheus query", Seconds: prometheus},
		{Name: "dashboard search", Seconds: search},
		{Name: "dashboard summary", Seconds: o.GrafanaTimeout},
		{Name: "image render", Seconds: render},
		{Name: "panel data", Seconds: o.LokiTimeout},
		{Name: "azure passthrough", Seconds: session},
	}
}

// Address returns the listen address.
func (o *Options) Address() string {
	return fmt.Sprintf("%v:%v", o.Host, o.Port)
}

// Seconds converts a whole second option to a duration.
func Seconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Enabled interprets a toggle value: 1, true, t, yes, y and on are true.
func Enabled(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}
