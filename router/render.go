package router

import (
	"context"
	"encoding/base64"

	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/fault"
)

const renderHint = "Azure Managed Grafana may not allow AAD-authenticated access to the /render endpoint in all configurations. This proxy can return a placeholder image (ENABLE_PLACEHOLDER_IMAGE_RENDER=true) to keep connector flows reliable."

// RenderRequest selects the image to render. Forward carries the caller's
// arguments for amg-mcp.
type RenderRequest struct {
	DashboardUID string
	PanelID      *int64
	FromMs       *int64
	ToMs         *int64
	Width        *int64
	Height       *int64
	Forward      backend.Arguments
}

// RenderImage renders a panel, or the whole dashboard, to a base64 PNG.
func (r *Router) RenderImage(ctx context.Context, request *RenderRequest) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	c := &chain{}
	png, err := r.render(ctx, request)
	if err == nil {
		return c.success(SourceGrafanaDirect, map[string]any{
			"contentType": "image/png",
			"imageBase64": base64.StdEncoding.EncodeToString(png),
			"bytes":       len(png),
		})
	}
	c.fail(SourceGrafanaDirect, err)
	warning := map[string]any{"errorType": string(fault.KindOf(err)), "error": describe(err), "hint": renderHint}
	if r.config.EnableBackendRender {
		ret, done := r.sessionTier(ctx, c, "amgmcp_image_render", request.Forward, r.config.ToolTimeout)
		if done && ret.OK {
			return ret
		}
		if done {
			warning["backend"] = ret.Map()
		}
	}
	if r.config.EnablePlaceholderImage {
		return c.success(SourcePlaceholder, map[string]any{
			"contentType": "image/png",
			"imageBase64": dashboard.PlaceholderPNG,
			"bytes":       dashboard.PlaceholderSize,
			"warning":     warning,
		})
	}
	payload := map[string]any{}
	if backendResult, ok := warning["backend"]; ok {
		payload["backend"] = backendResult
	}
	ret := c.failure(SourceGrafanaDirect, err, payload)
	ret.Hint = renderHint
	return ret
}

func (r *Router) render(ctx context.Context, request *RenderRequest) ([]byte, error) {
	if !r.grafana.Configured() {
		return nil, fault.New(fault.Unreachable, SourceGrafanaDirect, "GRAFANA_ENDPOINT is required")
	}
	if request.DashboardUID == "" {
		return nil, fault.New(fault.InvalidArgument, SourceGrafanaDirect, "dashboardUid is required")
	}
	document, err := r.grafana.Dashboard(ctx, request.DashboardUID)
	if err != nil {
		return nil, err
	}
	panelID := request.PanelID
	if panelID == nil && !r.config.RenderFullDashboard {
		panelID = dashboard.FirstPanelID(document)
	}
	return r.grafana.Render(ctx, &downstream.RenderRequest{
		UID:     request.DashboardUID,
		Slug:    dashboard.Slug(document),
		PanelID: panelID,
		FromMs:  request.FromMs,
		ToMs:    request.ToMs,
		Width:   request.Width,
		Height:  request.Height,
	})
}
