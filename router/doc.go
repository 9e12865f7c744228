// Package router answers inbound tool calls by walking an ordered chain of
// backends: cache, direct HTTP endpoints, the supervised amg-mcp session and
// finally synthetic payloads. The first success wins and every failed attempt is
// recorded on the returned Outcome.
package router
