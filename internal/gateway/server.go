package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextmcp/nextcloud-mcp-gateway/internal/nextcloud"
	"github.com/nextmcp/nextcloud-mcp-gateway/internal/oauth"
)

// Server is the MCP tool surface of the gateway. Tool handlers receive the
// verified identity through the request context; the OAuth middleware in
// front of the HTTP transport guarantees it is present on remote calls.
type Server struct {
	mcpServer *server.MCPServer
	identity  *nextcloud.IdentityClient
}

// NewServer creates the MCP server and registers the Nextcloud tools.
func NewServer(identity *nextcloud.IdentityClient, version string) *Server {
	mcpServer := server.NewMCPServer(
		"nextcloud-mcp-gateway",
		version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcpServer: mcpServer,
		identity:  identity,
	}
	s.registerTools()
	return s
}

// HTTPHandler returns the streamable HTTP transport for mounting behind the
// auth middleware.
func (s *Server) HTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStdio serves the MCP protocol over stdin/stdout for local clients.
// No auth applies on this path.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	whoamiTool := mcp.NewTool("nextcloud_whoami",
		mcp.WithDescription("Show the authenticated Nextcloud user and the scopes granted to this session"),
	)
	s.mcpServer.AddTool(whoamiTool, s.handleWhoami)

	statusTool := mcp.NewTool("nextcloud_status",
		mcp.WithDescription("Show version and availability information of the connected Nextcloud server"),
	)
	s.mcpServer.AddTool(statusTool, s.handleStatus)
}

// handleWhoami reports the identity attached to the session by the OAuth
// middleware. Over stdio there is no identity and the tool says so.
func (s *Server) handleWhoami(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := oauth.AuthInfoFromContext(ctx)
	if info == nil {
		return mcp.NewToolResultText("Not authenticated (local session)."), nil
	}

	payload, err := json.MarshalIndent(map[string]interface{}{
		"user_id":    info.UserID,
		"client_id":  info.ClientID,
		"scopes":     info.Scopes,
		"expires_at": info.ExpiresAt,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format identity: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// handleStatus fetches the public status document of the Nextcloud server.
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.identity.ServerStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reach Nextcloud: %v", err)), nil
	}

	payload, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
