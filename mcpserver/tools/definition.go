package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// DefinitionTool resolves where the symbol at a position is defined.
func DefinitionTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_definition",
			mcp.WithDescription("Find where the symbol at a position is defined. Returns one path:line:column per definition site, zero-based."),
			mcp.WithString("file", mcp.Required(), mcp.Description("Path to the source file")),
			mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based line number")),
			mcp.WithNumber("column", mcp.Required(), mcp.Description("Zero-based column number")),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			file, line, column, err := requirePosition(request)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			locations, err := bridge.Definition(ctx, file, line, column)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(locations) == 0 {
				return mcp.NewToolResultText("No definition found"), nil
			}

			return mcp.NewToolResultText(formatLocations(locations)), nil
		}
}

func RegisterDefinitionTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(DefinitionTool(bridge))
}
