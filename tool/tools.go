package tool

import (
	"context"
	"encoding/json"

	"github.com/viant/amgproxy/router"
	"github.com/viant/jsonrpc"
	"github.com/viant/mcp-protocol/schema"
	proto "github.com/viant/mcp-protocol/server"
)

// Tool names.
const (
	DatasourceList   = "amgmcp_datasource_list"
	QueryDatasource  = "amgmcp_query_datasource"
	DashboardSearch  = "amgmcp_dashboard_search"
	DashboardSummary = "amgmcp_get_dashboard_summary"
	ImageRender      = "amgmcp_image_render"
	PanelData        = "amgmcp_get_panel_data"
)

// Tools binds MCP tools to a router.
type Tools struct {
	router *router.Router
	azure  bool
}

// New creates tools; azure also exposes the amg-mcp Azure resource tools.
func New(r *router.Router, azure bool) *Tools {
	return &Tools{router: r, azure: azure}
}

// Register registers every tool on handler.
func (t *Tools) Register(handler *proto.DefaultHandler) error {
	registry := handler.Registry
	if err := proto.RegisterTool[*DatasourceListInput, *Output](registry, DatasourceList,
		"List datasources visible to Azure Managed Grafana.", t.listDatasources); err != nil {
		return err
	}
	if err := proto.RegisterTool[*QueryDatasourceInput, *Output](registry, QueryDatasource,
		"Run a Loki or Prometheus time range query. Prometheus goes through the Grafana datasource proxy or the Azure Monitor workspace; Loki goes direct when configured.", t.queryDatasource); err != nil {
		return err
	}
	if err := proto.RegisterTool[*DashboardSearchInput, *Output](registry, DashboardSearch,
		"Search dashboards in Azure Managed Grafana.", t.searchDashboards); err != nil {
		return err
	}
	if err := proto.RegisterTool[*DashboardSummaryInput, *Output](registry, DashboardSummary,
		"Get a dashboard title and its flattened panel list. Use panel ids with amgmcp_image_render.", t.dashboardSummary); err != nil {
		return err
	}
	if err := proto.RegisterTool[*ImageRenderInput, *Output](registry, ImageRender,
		"Render a Grafana panel, or a whole dashboard, to a base64 PNG.", t.renderImage); err != nil {
		return err
	}
	if err := proto.RegisterTool[*PanelDataInput, *Output](registry, PanelData,
		"Return the data behind a dashboard panel by running its Loki query with template variables applied.", t.panelData); err != nil {
		return err
	}
	if !t.azure {
		return nil
	}
	if err := proto.RegisterTool[*ResourceLogInput, *Output](registry, router.ToolResourceLog,
		"Run KQL against Azure Monitor resource logs through Grafana.", t.resourceLog); err != nil {
		return err
	}
	if err := proto.RegisterTool[*ResourceGraphInput, *Output](registry, router.ToolResourceGraph,
		"Run an Azure Resource Graph query through Grafana.", t.resourceGraph); err != nil {
		return err
	}
	return proto.RegisterTool[*SubscriptionsInput, *Output](registry, router.ToolSubscriptions,
		"List subscriptions visible to the Grafana Azure Monitor datasource.", t.subscriptions)
}

func (t *Tools) listDatasources(ctx context.Context, _ *DatasourceListInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.ListDatasources(ctx))
}

func (t *Tools) queryDatasource(ctx context.Context, input *QueryDatasourceInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.QueryDatasource(ctx, router.NewQueryRequest(arguments(input))))
}

func (t *Tools) searchDashboards(ctx context.Context, input *DashboardSearchInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.SearchDashboards(ctx, text(first(input.Query, input.Search)), input.Arguments))
}

func (t *Tools) dashboardSummary(ctx context.Context, input *DashboardSummaryInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.DashboardSummary(ctx, text(first(input.DashboardUid, input.Uid))))
}

func (t *Tools) renderImage(ctx context.Context, input *ImageRenderInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.RenderImage(ctx, renderRequest(input)))
}

func renderRequest(input *ImageRenderInput) *router.RenderRequest {
	uid := first(input.DashboardUid, input.Uid)
	return &router.RenderRequest{
		DashboardUID: text(uid),
		PanelID:      input.PanelId,
		FromMs:       input.FromMs,
		ToMs:         input.ToMs,
		Width:        input.Width,
		Height:       input.Height,
		Forward: merge(input.Arguments,
			kv{"dashboardUid", optional(uid)},
			kv{"uid", optional(uid)},
			kv{"panelId", optional(input.PanelId)},
			kv{"from", optional(input.FromMs)},
			kv{"fromMs", optional(input.FromMs)},
			kv{"to", optional(input.ToMs)},
			kv{"toMs", optional(input.ToMs)},
			kv{"width", optional(input.Width)},
			kv{"height", optional(input.Height)},
		),
	}
}

func (t *Tools) panelData(ctx context.Context, input *PanelDataInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.PanelData(ctx, &router.PanelDataRequest{
		DashboardUID: text(first(input.DashboardUid, input.Uid)),
		PanelTitle:   text(input.PanelTitle),
		App:          text(input.App),
		TemplateVars: input.TemplateVars,
		FromMs:       input.FromMs,
		ToMs:         input.ToMs,
		StepMs:       input.StepMs,
		Limit:        input.Limit,
	}))
}

func (t *Tools) resourceLog(ctx context.Context, input *ResourceLogInput) (*schema.CallToolResult, *jsonrpc.Error) {
	query := optional(first(input.Query, input.Kql))
	return result(t.router.Passthrough(ctx, router.ToolResourceLog, merge(input.Arguments,
		kv{"query", query},
		kv{"kql", query},
		kv{"resourceId", optional(input.ResourceId)},
	)))
}

func (t *Tools) resourceGraph(ctx context.Context, input *ResourceGraphInput) (*schema.CallToolResult, *jsonrpc.Error) {
	query := optional(first(input.Query, input.Kql))
	defaults := []kv{{"query", query}, {"kql", query}}
	if input.Subscriptions != nil {
		defaults = append(defaults, kv{"subscriptions", input.Subscriptions})
	}
	return result(t.router.Passthrough(ctx, router.ToolResourceGraph, merge(input.Arguments, defaults...)))
}

func (t *Tools) subscriptions(ctx context.Context, input *SubscriptionsInput) (*schema.CallToolResult, *jsonrpc.Error) {
	return result(t.router.Passthrough(ctx, router.ToolSubscriptions, merge(input.Arguments)))
}

// result renders an outcome as structured content plus a JSON text element.
func result(outcome *router.Outcome) (*schema.CallToolResult, *jsonrpc.Error) {
	data, err := json.Marshal(outcome.Map())
	if err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	structured := map[string]interface{}{}
	if err = json.Unmarshal(data, &structured); err != nil {
		return nil, jsonrpc.NewInternalError(err.Error(), nil)
	}
	return &schema.CallToolResult{
		StructuredContent: structured,
		Content: []schema.CallToolResultContentElem{
			{Text: string(data), Type: "text"},
		},
	}, nil
}
