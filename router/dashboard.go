package router

import (
	"context"
	"strings"
	"time"

	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/internal/conv"
)

const (
	demoDashboardTitle = "Grocery App - SRE Overview (Custom)"
	defaultWindow      = time.Hour
	defaultStepMs      = 30_000
)

// SearchHit is a synthetic dashboard search result.
type SearchHit struct {
	UID   string `json:"uid"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// SearchDashboards searches dashboards. args is forwarded to amg-mcp with query
// and search both set.
func (r *Router) SearchDashboards(ctx context.Context, query string, args backend.Arguments) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	forward := backend.Arguments{}
	for k, v := range args {
		forward[k] = v
	}
	if query != "" {
		setDefault(forward, "query", query)
		setDefault(forward, "search", query)
	}
	c := &chain{}
	if r.config.EnableGrafanaSearch {
		result, err := r.grafana.Search(ctx, query)
		if err == nil {
			return c.success(SourceGrafanaDirect, map[string]any{"result": result})
		}
		c.fail(SourceGrafanaDirect, err)
	}
	if r.config.EnableBackendSearch {
		if ret, done := r.sessionTier(ctx, c, "amgmcp_dashboard_search", forward, r.config.ToolTimeout); done {
			return ret
		}
	}
	return c.success(SourceFallback, map[string]any{"result": r.fallbackSearch(query)})
}

func (r *Router) fallbackSearch(query string) []*SearchHit {
	q := strings.ToLower(query)
	hit := &SearchHit{UID: r.config.DefaultDashboard, Title: demoDashboardTitle, Type: "dash-db"}
	if strings.Contains(q, "grocery") && strings.Contains(q, "sre") && strings.Contains(q, "overview") {
		return []*SearchHit{hit}
	}
	if strings.Contains(q, strings.ToLower(demoDashboardTitle)) {
		return []*SearchHit{hit}
	}
	return []*SearchHit{}
}

func (r *Router) dashboardUID(uid string) string {
	if uid = strings.TrimSpace(uid); uid != "" {
		return uid
	}
	return r.config.DefaultDashboard
}

// DashboardSummary returns the dashboard title and its flattened panels, from
// Grafana or else from the baked-in template.
func (r *Router) DashboardSummary(ctx context.Context, uid string) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	uid = r.dashboardUID(uid)
	c := &chain{}
	document, err := r.grafana.Dashboard(ctx, uid)
	if err == nil {
		summary := dashboard.Summarize(uid, document)
		return c.success(SourceGrafanaDirect, map[string]any{"dashboard": summary.Dashboard, "panels": summary.Panels})
	}
	c.fail(SourceGrafanaDirect, err)
	grafanaErr := err
	template, err := r.loadTemplate(ctx, uid)
	if err == nil {
		summary := template.Summary()
		return c.success(SourceTemplate, map[string]any{
			"dashboard":    summary.Dashboard,
			"panels":       summary.Panels,
			"warning":      summary.Warning,
			"grafanaError": errorInfo(grafanaErr),
		})
	}
	c.fail(SourceTemplate, err)
	return c.failure(SourceGrafanaDirect, grafanaErr, map[string]any{
		"dashboard":     map[string]any{"uid": uid},
		"panels":        []any{},
		"fallbackError": errorInfo(err),
	})
}

func (r *Router) loadTemplate(ctx context.Context, uid string) (*dashboard.Template, error) {
	if r.templates == nil {
		return nil, fault.New(fault.Unreachable, SourceTemplate, "dashboard templates are not configured")
	}
	return r.templates.Load(ctx, uid)
}

// PanelDataRequest selects a template panel and its query window.
type PanelDataRequest struct {
	DashboardUID string
	PanelTitle   string
	App          string
	TemplateVars map[string]any
	FromMs       *int64
	ToMs         *int64
	StepMs       *int64
	Limit        *int64
}

// PanelData runs the Loki query behind a template panel, with template
// variables and Grafana macros substituted.
func (r *Router) PanelData(ctx context.Context, request *PanelDataRequest) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	uid := r.dashboardUID(request.DashboardUID)
	title := strings.TrimSpace(request.PanelTitle)
	if title == "" {
		return invalid(SourceTemplate, "panelTitle is required")
	}
	overrides := map[string]string{}
	if app := strings.TrimSpace(request.App); app != "" {
		overrides["app"] = app
	}
	for key, value := range request.TemplateVars {
		key = strings.TrimSpace(key)
		text, ok := conv.AsString(value)
		if key != "" && ok {
			overrides[key] = text
		}
	}
	c := &chain{}
	if !r.loki.Configured() {
		return c.failure(SourceLokiDirect, fault.New(fault.Unreachable, SourceLokiDirect, "LOKI_ENDPOINT is not set"), nil)
	}
	endMs := r.now().UnixMilli()
	if request.ToMs != nil {
		endMs = *request.ToMs
	}
	startMs := endMs - defaultWindow.Milliseconds()
	if request.FromMs != nil {
		startMs = *request.FromMs
	}
	if endMs <= startMs {
		return invalid(SourceLokiDirect, "toMs must be > fromMs")
	}
	stepMs := int64(defaultStepMs)
	if request.StepMs != nil {
		stepMs = *request.StepMs
	}
	if stepMs <= 0 {
		return invalid(SourceLokiDirect, "stepMs must be > 0")
	}

	template, err := r.loadTemplate(ctx, uid)
	if err != nil {
		return c.failure(SourceTemplate, err, nil)
	}
	panel, err := template.PanelQuery(title, "A")
	if err != nil {
		return c.failure(SourceTemplate, err, nil)
	}
	vars := template.DefaultVars()
	for k, v := range dashboard.MacroVars(startMs, endMs, stepMs) {
		vars[k] = v
	}
	for k, v := range overrides {
		vars[k] = v
	}
	expr := dashboard.ApplyVars(panel.Expr, vars)
	step := float64(stepMs) / 1000
	result, err := r.loki.QueryRange(ctx, &downstream.LokiQuery{Query: expr, StartMs: startMs, EndMs: endMs, Limit: request.Limit, Step: &step})
	if err != nil {
		return c.failure(SourceTemplate, err, nil)
	}
	return c.success(SourceLokiDirect, map[string]any{
		"dashboardUid": uid,
		"panel":        panel,
		"query": map[string]any{
			"expr":   expr,
			"fromMs": startMs,
			"toMs":   endMs,
			"stepMs": stepMs,
			"vars":   vars,
		},
		"result": result,
	})
}
