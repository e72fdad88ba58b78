package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// SymbolsTool lists the symbols of a document, indented by nesting level
// when the server answers hierarchically.
func SymbolsTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_symbols",
			mcp.WithDescription("List the symbols (functions, types, variables) declared in a file. Positions are zero-based."),
			mcp.WithString("file", mcp.Required(), mcp.Description("Path to the source file")),
			mcp.WithString("query", mcp.Description("Case-insensitive substring to filter symbol names")),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			file, err := request.RequireString("file")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			query := request.GetString("query", "")

			symbols, err := bridge.DocumentSymbols(ctx, file, query)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if len(symbols) == 0 {
				if query != "" {
					return mcp.NewToolResultText(fmt.Sprintf("No symbols matching %q", query)), nil
				}
				return mcp.NewToolResultText("No symbols found"), nil
			}

			var sb strings.Builder
			for _, sym := range symbols {
				sb.WriteString(strings.Repeat("  ", sym.Depth))
				fmt.Fprintf(&sb, "%s [%s]", sym.Name, symbolKindName(sym.Kind))
				if sym.ContainerName != "" && sym.Depth == 0 {
					fmt.Fprintf(&sb, " in %s", sym.ContainerName)
				}
				fmt.Fprintf(&sb, " %d:%d-%d:%d\n",
					sym.Range.Start.Line, sym.Range.Start.Character,
					sym.Range.End.Line, sym.Range.End.Character)
			}

			return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
		}
}

func RegisterSymbolsTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(SymbolsTool(bridge))
}
