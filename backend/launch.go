package backend

// DefaultBinary is the amg-mcp install location in the proxy image.
const DefaultBinary = "/usr/local/bin/amg-mcp"

// LaunchSpec describes how to start the child process.
type LaunchSpec struct {
	Path string
	Args []string
	// Env entries are appended to the proxy's own environment.
	Env []string
}

// NewLaunchSpec returns the stdio launch vector for the Grafana endpoint.
func NewLaunchSpec(binary, grafanaEndpoint string) LaunchSpec {
	if binary == "" {
		binary = DefaultBinary
	}
	return LaunchSpec{
		Path: binary,
		Args: []string{
			"--AmgMcpOptions:Transport=Stdio",
			"--AmgMcpOptions:AzureManagedGrafanaEndpoint=" + grafanaEndpoint,
		},
	}
}
