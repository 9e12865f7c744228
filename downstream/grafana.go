package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/viant/amgproxy/fault"
)

// GrafanaConfig configures the Grafana data-plane client.
type GrafanaConfig struct {
	Endpoint      string
	Resource      string
	OrgID         int
	Timeout       time.Duration
	RenderTimeout time.Duration
	ProxyTimeout  time.Duration
}

// RenderRequest selects a dashboard or panel image. A nil PanelID renders the
// whole dashboard.
type RenderRequest struct {
	UID     string
	Slug    string
	PanelID *int64
	FromMs  *int64
	ToMs    *int64
	Width   *int64
	Height  *int64
}

// Grafana calls the Azure Managed Grafana HTTP API.
type Grafana struct {
	config       GrafanaConfig
	client       *http.Client
	renderClient *http.Client
	tokens       Tokens
}

// NewGrafana creates a client.
func NewGrafana(config GrafanaConfig, tokens Tokens) *Grafana {
	config.Endpoint = strings.TrimRight(config.Endpoint, "/")
	if config.OrgID == 0 {
		config.OrgID = 1
	}
	if config.ProxyTimeout <= 0 {
		config.ProxyTimeout = config.Timeout
	}
	return &Grafana{
		config:       config,
		client:       &http.Client{Timeout: config.Timeout},
		renderClient: &http.Client{Timeout: config.RenderTimeout},
		tokens:       tokens,
	}
}

// Configured reports whether an endpoint is set.
func (g *Grafana) Configured() bool {
	return g != nil && g.config.Endpoint != ""
}

func (g *Grafana) request(op, path, accept string) (*request, error) {
	if !g.Configured() {
		return nil, fault.New(fault.Unreachable, op, "GRAFANA_ENDPOINT is required")
	}
	return &request{
		op:       op,
		url:      g.config.Endpoint + path,
		accept:   accept,
		header:   map[string]string{"X-Grafana-Org-Id": strconv.Itoa(g.config.OrgID)},
		tokens:   g.tokens,
		resource: g.config.Resource,
	}, nil
}

// Dashboard returns /api/dashboards/uid/{uid}.
func (g *Grafana) Dashboard(ctx context.Context, uid string) (map[string]any, error) {
	r, err := g.request("grafana", "/api/dashboards/uid/"+url.PathEscape(uid), "")
	if err != nil {
		return nil, err
	}
	raw, err := fetchJSON(ctx, g.client, r)
	if err != nil {
		return nil, err
	}
	ret := map[string]any{}
	if err = json.Unmarshal(raw, &ret); err != nil {
		return nil, fault.Wrap(fault.Unreachable, "grafana", fmt.Errorf("failed to decode dashboard %v: %w", uid, err))
	}
	return ret, nil
}

// Search runs /api/search.
func (g *Grafana) Search(ctx context.Context, query string) (json.RawMessage, error) {
	r, err := g.request("grafana", "/api/search?"+url.Values{"query": {strings.TrimSpace(query)}}.Encode(), "")
	if err != nil {
		return nil, err
	}
	return fetchJSON(ctx, g.client, r)
}

// PromQueryRange runs PromQL through the Grafana datasource proxy, which
// authenticates to the datasource server side.
func (g *Grafana) PromQueryRange(ctx context.Context, datasourceUID string, query *RangeQuery) (json.RawMessage, error) {
	datasourceUID = strings.TrimSpace(datasourceUID)
	if datasourceUID == "" {
		return nil, fault.New(fault.InvalidArgument, "grafana-datasource-proxy", "datasource uid is required")
	}
	path := "/api/datasources/proxy/uid/" + url.PathEscape(datasourceUID) + "/api/v1/query_range?" + query.values().Encode()
	r, err := g.request("grafana-datasource-proxy", path, "")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.ProxyTimeout)
	defer cancel()
	return fetchJSON(ctx, g.client, r)
}

// Render returns a PNG from /render/d-solo (panel) or /render/d (dashboard).
func (g *Grafana) Render(ctx context.Context, render *RenderRequest) ([]byte, error) {
	uid := strings.TrimSpace(render.UID)
	if uid == "" {
		return nil, fault.New(fault.InvalidArgument, "grafana-render", "dashboardUid is required")
	}
	slug := render.Slug
	if slug == "" {
		slug = "-"
	}
	kind := "d"
	params := url.Values{}
	params.Set("orgId", strconv.Itoa(g.config.OrgID))
	if render.PanelID != nil {
		kind = "d-solo"
		params.Set("panelId", strconv.FormatInt(*render.PanelID, 10))
	}
	setOptional(params, "from", render.FromMs)
	setOptional(params, "to", render.ToMs)
	setOptional(params, "width", render.Width)
	setOptional(params, "height", render.Height)
	path := fmt.Sprintf("/render/%v/%v/%v?%v", kind, url.PathEscape(uid), url.PathEscape(slug), params.Encode())
	r, err := g.request("grafana-render", path, "image/png")
	if err != nil {
		return nil, err
	}
	return fetch(ctx, g.renderClient, r)
}

func setOptional(params url.Values, key string, value *int64) {
	if value != nil {
		params.Set(key, strconv.FormatInt(*value, 10))
	}
}
