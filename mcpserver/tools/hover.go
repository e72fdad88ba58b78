package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// HoverTool shows type signatures and documentation for the symbol at a
// position.
func HoverTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_hover",
			mcp.WithDescription("Get hover information (type signature, documentation) for the symbol at a position. Line and column are zero-based."),
			mcp.WithString("file", mcp.Required(), mcp.Description("Path to the source file")),
			mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based line number")),
			mcp.WithNumber("column", mcp.Required(), mcp.Description("Zero-based column number")),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			file, line, column, err := requirePosition(request)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			hover, err := bridge.Hover(ctx, file, line, column)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if hover == nil {
				return mcp.NewToolResultText("No hover information available at this position"), nil
			}

			content := extractHoverContent(hover)
			if content == "" {
				return mcp.NewToolResultText("No hover information available at this position"), nil
			}

			return mcp.NewToolResultText(content), nil
		}
}

func RegisterHoverTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(HoverTool(bridge))
}
