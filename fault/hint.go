package fault

// Hint returns a remediation hint for well understood failure modes, or "".
func Hint(err error) string {
	switch KindOf(err) {
	case Timeout:
		return "The underlying amg-mcp stdio call exceeded the proxy timeout. The proxy reset the backend; retry the tool call, " +
			"or increase AMG_MCP_TOOL_TIMEOUT_S (keep it below CALLER_TIMEOUT_S to avoid client cancellation)."
	case ChannelClosed, Framing:
		return "The underlying amg-mcp process appears unhealthy. The proxy reset it; retry the tool call."
	case HandshakeFailed:
		if Is(err, Timeout) {
			return "amg-mcp did not finish startup in time. Retry, or increase AMG_MCP_INIT_TIMEOUT_S / AMG_MCP_TOOLS_LIST_TIMEOUT_S."
		}
		return "amg-mcp rejected the initialize or tools/list handshake; check GRAFANA_ENDPOINT and the amg-mcp version."
	case Unreachable:
		return "A downstream endpoint could not be reached; check the endpoint configuration and the proxy identity's permissions."
	}
	return ""
}
