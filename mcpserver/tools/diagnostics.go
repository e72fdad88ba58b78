package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// diagnosticView is the rendered form of one cached diagnostic. The protocol
// types are decode-only in this module, so the tool re-shapes them before
// marshalling.
type diagnosticView struct {
	Range    rangeView `json:"range"`
	Severity string    `json:"severity,omitempty"`
	Message  string    `json:"message"`
}

type rangeView struct {
	Start positionView `json:"start"`
	End   positionView `json:"end"`
}

type positionView struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

func severityName(s *protocol.DiagnosticSeverity) string {
	if s == nil {
		return ""
	}
	switch int(*s) {
	case 1:
		return "Error"
	case 2:
		return "Warning"
	case 3:
		return "Information"
	case 4:
		return "Hint"
	default:
		return fmt.Sprintf("Severity(%d)", int(*s))
	}
}

func diagnosticViews(diags []protocol.Diagnostic) []diagnosticView {
	views := make([]diagnosticView, len(diags))
	for i, d := range diags {
		views[i] = diagnosticView{
			Range: rangeView{
				Start: positionView{Line: d.Range.Start.Line, Character: d.Range.Start.Character},
				End:   positionView{Line: d.Range.End.Line, Character: d.Range.End.Character},
			},
			Severity: severityName(d.Severity),
			Message:  d.Message,
		}
	}
	return views
}

// DiagnosticsTool reads the latest diagnostics snapshot pushed for a file.
// Pure cache read: it never spawns a server or blocks on one.
func DiagnosticsTool(bridge types.BridgeInterface) (mcp.Tool, server.ToolHandlerFunc) {
	return mcp.NewTool("lsp_diagnostics",
			mcp.WithDescription("Get the most recent diagnostics (errors, warnings) the language server published for a file. Reads the cached snapshot; an empty answer means nothing was published yet, not that the file is clean."),
			mcp.WithString("file", mcp.Required(), mcp.Description("Path to the source file")),
		), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			file, err := request.RequireString("file")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			entry, found, err := bridge.Diagnostics(file)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if !found {
				return mcp.NewToolResultText(fmt.Sprintf("No diagnostics have been published for %s yet", file)), nil
			}
			if len(entry.Diagnostics) == 0 {
				return mcp.NewToolResultText(fmt.Sprintf("No diagnostics for %s (last published %s)", file, entry.ReceivedAt.Format("15:04:05"))), nil
			}

			payload, err := json.MarshalIndent(diagnosticViews(entry.Diagnostics), "", "  ")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			header := fmt.Sprintf("%d diagnostic(s) for %s:\n", len(entry.Diagnostics), file)

			return mcp.NewToolResultText(header + string(payload)), nil
		}
}

func RegisterDiagnosticsTool(mcpServer ToolServer, bridge types.BridgeInterface) {
	mcpServer.AddTool(DiagnosticsTool(bridge))
}
