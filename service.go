package amgproxy

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/config"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/identity"
	"github.com/viant/amgproxy/router"
	"github.com/viant/amgproxy/tool"
	protoserver "github.com/viant/mcp-protocol/server"
)

// Name identifies the proxy in MCP implementation info and the status endpoint.
const Name = "amg-mcp-http-proxy"

// Version is the proxy version reported to MCP clients.
var Version = "0.1.0"

// Service holds the proxy components built from options.
type Service struct {
	options    *config.Options
	logger     zerolog.Logger
	supervisor *backend.Supervisor
	router     *router.Router
	tools      *tool.Tools
}

// New builds the service. The amg-mcp child is not started until first use or Warm.
func New(options *config.Options, logger zerolog.Logger) *Service {
	tokens := identity.New(identity.Config{
		Endpoint: options.IdentityEndpoint,
		Header:   options.IdentityHeader,
		ClientID: options.ClientID,
		Timeout:  config.Seconds(options.GrafanaTimeout),
	})
	launch := backend.NewLaunchSpec(options.Binary, options.GrafanaEndpoint)
	factory := backend.NewFactory(launch, &backend.Options{
		InitTimeout:      config.Seconds(options.InitTimeout),
		DiscoveryTimeout: config.Seconds(options.DiscoveryTimeout),
		CloseTimeout:     config.Seconds(options.CloseTimeout),
		Diagnostics:      os.Stderr,
		Logger:           logger,
	})
	supervisor := backend.NewSupervisor(factory, logger)

	routerConfig := router.Config{
		CallerTimeout:           config.Seconds(options.CallerTimeout),
		ToolTimeout:             config.Seconds(options.ToolTimeout),
		PromQueryTimeout:        config.Seconds(options.PromQueryTimeout),
		CacheTTL:                config.Seconds(options.CacheTTL),
		DefaultDashboard:        options.DefaultDashboard,
		PrometheusUID:           options.PrometheusUID,
		PreferLokiDirectList:    config.Enabled(options.PreferLokiDirectList),
		EnableBackendPrometheus: config.Enabled(options.EnableBackendPrometheus),
		EnableGrafanaSearch:     config.Enabled(options.EnableGrafanaSearch),
		EnableBackendSearch:     config.Enabled(options.EnableBackendSearch),
		EnablePlaceholderImage:  config.Enabled(options.EnablePlaceholderImage),
		EnableBackendRender:     config.Enabled(options.EnableBackendRender),
		RenderFullDashboard:     config.Enabled(options.RenderFullDashboard),
	}
	r := router.New(routerConfig, supervisor,
		router.WithLoki(downstream.NewLoki(options.LokiEndpoint, config.Seconds(options.LokiTimeout))),
		router.WithPrometheus(downstream.NewPrometheus(options.AMWEndpoint, config.Seconds(options.AMWTimeout), tokens)),
		router.WithGrafana(downstream.NewGrafana(downstream.GrafanaConfig{
			Endpoint:      options.GrafanaEndpoint,
			Resource:      options.GrafanaResource,
			OrgID:         options.GrafanaOrgID,
			Timeout:       config.Seconds(options.GrafanaTimeout),
			RenderTimeout: config.Seconds(options.RenderTimeout),
			ProxyTimeout:  config.Seconds(options.GrafanaProxyTimeout),
		}, tokens)),
		router.WithTemplates(dashboard.NewStore(options.DashboardTemplate)),
		router.WithLogger(logger),
	)
	return &Service{
		options:    options,
		logger:     logger,
		supervisor: supervisor,
		router:     r,
		tools:      tool.New(r, config.Enabled(options.EnableAzureTools)),
	}
}

// NewHandler returns the MCP handler factory with every tool registered.
func (s *Service) NewHandler(ctx context.Context) protoserver.NewHandler {
	return protoserver.WithDefaultHandler(ctx, s.tools.Register)
}

// Warm starts amg-mcp eagerly. Failures are logged; the next call retries.
func (s *Service) Warm(ctx context.Context) {
	if err := s.supervisor.Warm(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("amg-mcp backend warm-up failed")
		return
	}
	s.logger.Info().Msg("amg-mcp backend warm-up complete")
}

// Close stops the amg-mcp child.
func (s *Service) Close() {
	s.supervisor.Close()
}

func (s *Service) status(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]string{"name": Name, "status": "ok"})
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
