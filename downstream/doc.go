// Package downstream implements the direct HTTP data-plane clients used ahead of
// the amg-mcp child: Loki query_range, Azure Monitor workspace PromQL and the
// Grafana dashboard, search, datasource proxy and render APIs.
//
// Every failure to complete a call, including a non 2xx reply, is reported as
// fault.Unreachable.
package downstream
