package router

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
)

// Config controls tier selection and timeouts. A chain runs within
// CallerTimeout less ChainMargin.
type Config struct {
	CallerTimeout    time.Duration
	ChainMargin      time.Duration
	ToolTimeout      time.Duration
	PromQueryTimeout time.Duration
	CacheTTL         time.Duration
	DefaultDashboard string
	PrometheusUID    string

	PreferLokiDirectList    bool
	EnableBackendPrometheus bool
	EnableGrafanaSearch     bool
	EnableBackendSearch     bool
	EnablePlaceholderImage  bool
	EnableBackendRender     bool
	RenderFullDashboard     bool
}

func (c *Config) init() {
	if c.CallerTimeout <= 0 {
		c.CallerTimeout = 100 * time.Second
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 30 * time.Second
	}
	if c.ChainMargin <= 0 || c.ChainMargin >= c.CallerTimeout {
		c.ChainMargin = min(5*time.Second, c.CallerTimeout/10)
	}
	if c.PromQueryTimeout <= 0 {
		c.PromQueryTimeout = 10 * time.Second
	}
	if c.DefaultDashboard == "" {
		c.DefaultDashboard = DefaultDashboard
	}
}

// Option configures a Router.
type Option func(r *Router)

// WithLoki sets the direct Loki client.
func WithLoki(loki *downstream.Loki) Option {
	return func(r *Router) {
		r.loki = loki
	}
}

// WithPrometheus sets the direct Azure Monitor workspace client.
func WithPrometheus(prometheus *downstream.Prometheus) Option {
	return func(r *Router) {
		r.prometheus = prometheus
	}
}

// WithGrafana sets the Grafana API client.
func WithGrafana(grafana *downstream.Grafana) Option {
	return func(r *Router) {
		r.grafana = grafana
	}
}

// WithTemplates sets the dashboard template store.
func WithTemplates(store *dashboard.Store) Option {
	return func(r *Router) {
		r.templates = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithClock replaces time.Now, used by the cache and default query windows.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}
