// Package amgproxy wires the amg-mcp HTTP proxy.
//
// Inbound MCP tool calls arrive over streamable HTTP and are served by a fallback
// router: direct Loki, Azure Monitor workspace and Grafana HTTP APIs first where
// they apply, and a single supervised amg-mcp child process speaking Content-Length
// framed JSON-RPC over stdio otherwise.
//
// Example:
//
//	if err := amgproxy.Run(os.Args[1:]); err != nil {
//		log.Fatal(err)
//	}
package amgproxy
