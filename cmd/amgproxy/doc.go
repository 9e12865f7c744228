// Command amgproxy serves the amg-mcp tools over streamable HTTP MCP.
//
// Settings come from flags or the environment, GRAFANA_ENDPOINT being the only
// required one.
package main
