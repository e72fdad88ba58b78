package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// ReferencesTool lists every reference to the symbol at a position.
func ReferencesTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_references",
			mcp.WithDescription("Find all references to the symbol at a position. Returns one path:line:column per reference, zero-based."),
			mcp.WithString("file", mcp.Required(), mcp.Description("Path to the source file")),
			mcp.WithNumber("line", mcp.Required(), mcp.Description("Zero-based line number")),
			mcp.WithNumber("column", mcp.Required(), mcp.Description("Zero-based column number")),
			mcp.WithBoolean("include_declaration", mcp.Description("Include the declaration itself in the results (default true)")),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			file, line, column, err := requirePosition(request)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			includeDeclaration := request.GetBool("include_declaration", true)

			locations, err := bridge.References(ctx, file, line, column, includeDeclaration)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(locations) == 0 {
				return mcp.NewToolResultText("No references found"), nil
			}

			header := fmt.Sprintf("%d reference(s):\n", len(locations))

			return mcp.NewToolResultText(header + formatLocations(locations)), nil
		}
}

func RegisterReferencesTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(ReferencesTool(bridge))
}
