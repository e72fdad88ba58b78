package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/mcpserver/tools"
	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// SetupMCPServer builds the MCP server and registers every bridge tool on it.
func SetupMCPServer(bridge types.BridgeInterface) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"lsp-mcp-bridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	RegisterAllTools(mcpServer, bridge)

	return mcpServer
}

// RegisterAllTools registers the bridge tool set with the server.
func RegisterAllTools(mcpServer tools.ToolServer, bridge types.BridgeInterface) {
	// Code intelligence
	tools.RegisterHoverTool(mcpServer, bridge)
	tools.RegisterDefinitionTool(mcpServer, bridge)
	tools.RegisterReferencesTool(mcpServer, bridge)
	tools.RegisterSymbolsTool(mcpServer, bridge)

	// Diagnostics snapshot
	tools.RegisterDiagnosticsTool(mcpServer, bridge)

	// Server/session status
	tools.RegisterServersTool(mcpServer, bridge)
}
