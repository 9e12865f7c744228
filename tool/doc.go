// Package tool exposes the router operations as MCP tools.
package tool
