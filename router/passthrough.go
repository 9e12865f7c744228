package router

import (
	"context"

	"github.com/viant/amgproxy/backend"
)

// Azure resource tools served by amg-mcp only.
const (
	ToolResourceLog   = "amgmcp_query_resource_log"
	ToolResourceGraph = "amgmcp_query_resource_graph"
	ToolSubscriptions = "amgmcp_query_azure_subscriptions"
)

// Passthrough forwards a tool call to the amg-mcp session with no other tier.
func (r *Router) Passthrough(ctx context.Context, tool string, args backend.Arguments) *Outcome {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	c := &chain{}
	if ret, done := r.sessionTier(ctx, c, tool, args, r.config.ToolTimeout); done {
		return ret
	}
	return c.failure(SourceSession, c.last, nil)
}
