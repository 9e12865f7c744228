package amgproxy

import (
	"context"
	"net/http"

	"github.com/viant/mcp-protocol/schema"
	"github.com/viant/mcp/server"
)

// StreamableURI is where MCP clients connect.
const StreamableURI = "/mcp"

// NewServer creates the streamable HTTP MCP server, with the status endpoints mounted
// next to it.
func (s *Service) NewServer(ctx context.Context) (*http.Server, error) {
	srv, err := server.New(
		server.WithNewHandler(s.NewHandler(ctx)),
		server.WithImplementation(schema.Implementation{Name: Name, Version: Version}),
		server.WithStreamableURI(StreamableURI),
		server.WithCustomHTTPHandler("/", s.status),
		server.WithCustomHTTPHandler("/healthz", s.health),
	)
	if err != nil {
		return nil, err
	}
	srv.UseStreamableHTTP(true)
	return srv.HTTP(ctx, s.options.Address()), nil
}
