package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// ServersTool reports the configured language servers and their session
// states.
func ServersTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_servers",
			mcp.WithDescription("List the configured language servers, the file extensions they handle and whether a session is currently running."),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			infos := bridge.Servers()
			if len(infos) == 0 {
				return mcp.NewToolResultText("No language servers configured"), nil
			}

			payload, err := json.MarshalIndent(infos, "", "  ")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			return mcp.NewToolResultText(string(payload)), nil
		}
}

func RegisterServersTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(ServersTool(bridge))
}
