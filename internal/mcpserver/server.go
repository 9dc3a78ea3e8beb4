package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Atelier admin tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("atelier", "1.0.0")
	client := NewAtelierClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetDispute, h.HandleGetDispute)
	s.AddTool(ToolListDisputes, h.HandleListDisputes)
	s.AddTool(ToolResolveDispute, h.HandleResolveDispute)
	s.AddTool(ToolDisputeActivity, h.HandleDisputeActivity)
	s.AddTool(ToolDisputeStats, h.HandleDisputeStats)

	return s
}
