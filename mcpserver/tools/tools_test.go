package tools

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stryk91/lsp-mcp-bridge/lsp"
	"github.com/Stryk91/lsp-mcp-bridge/types"
)

// stubBridge scripts the answers the tool handlers see.
type stubBridge struct {
	hover       *protocol.Hover
	locations   []protocol.Location
	symbols     []lsp.Symbol
	diagnostics lsp.FileDiagnostics
	published   bool
	servers     []types.ServerInfo
	err         error

	lastIncludeDeclaration bool
	lastQuery              string
}

func (s *stubBridge) Hover(ctx context.Context, path string, line, column uint32) (*protocol.Hover, error) {
	return s.hover, s.err
}

func (s *stubBridge) Definition(ctx context.Context, path string, line, column uint32) ([]protocol.Location, error) {
	return s.locations, s.err
}

func (s *stubBridge) References(ctx context.Context, path string, line, column uint32, includeDeclaration bool) ([]protocol.Location, error) {
	s.lastIncludeDeclaration = includeDeclaration
	return s.locations, s.err
}

func (s *stubBridge) DocumentSymbols(ctx context.Context, path, query string) ([]lsp.Symbol, error) {
	s.lastQuery = query
	return s.symbols, s.err
}

func (s *stubBridge) Diagnostics(path string) (lsp.FileDiagnostics, bool, error) {
	return s.diagnostics, s.published, s.err
}

func (s *stubBridge) Servers() []types.ServerInfo {
	return s.servers
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "tool results are text")

	return text.Text
}

func positionArgs() map[string]any {
	return map[string]any{"file": "/workspace/main.go", "line": 3.0, "column": 7.0}
}

func TestHoverTool(t *testing.T) {
	stub := &stubBridge{
		hover: &protocol.Hover{
			Contents: protocol.Or3[protocol.MarkupContent, protocol.MarkedString, []protocol.MarkedString]{
				Value: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: "func main()"},
			},
		},
	}
	_, handler := HoverTool(stub)

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "func main()", resultText(t, result))
}

func TestHoverToolNothingAtPosition(t *testing.T) {
	_, handler := HoverTool(&stubBridge{})

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No hover information")
}

func TestHoverToolMissingArguments(t *testing.T) {
	_, handler := HoverTool(&stubBridge{})

	result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
	require.NoError(t, err, "argument problems are tool errors, not transport errors")
	assert.True(t, result.IsError)
}

func TestHoverToolNegativePosition(t *testing.T) {
	_, handler := HoverTool(&stubBridge{})

	args := positionArgs()
	args["line"] = -1.0

	result, err := handler(context.Background(), callRequest(args))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHoverToolBridgeError(t *testing.T) {
	stub := &stubBridge{err: lsp.Errorf(lsp.KindNotConfigured, "no language server configured for extension %q", ".weird")}
	_, handler := HoverTool(stub)

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "NotConfigured")
}

func TestDefinitionToolFormatsZeroBasedLocations(t *testing.T) {
	stub := &stubBridge{
		locations: []protocol.Location{
			{
				Uri: "file:///workspace/def.go",
				Range: protocol.Range{
					Start: protocol.Position{Line: 12, Character: 4},
					End:   protocol.Position{Line: 12, Character: 9},
				},
			},
		},
	}
	_, handler := DefinitionTool(stub)

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.Equal(t, "/workspace/def.go:12:4", resultText(t, result))
}

func TestDefinitionToolNoResult(t *testing.T) {
	_, handler := DefinitionTool(&stubBridge{})

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No definition found", resultText(t, result))
}

func TestReferencesToolDefaultsIncludeDeclaration(t *testing.T) {
	stub := &stubBridge{
		locations: []protocol.Location{
			{Uri: "file:///workspace/a.go"},
			{Uri: "file:///workspace/b.go"},
		},
	}
	_, handler := ReferencesTool(stub)

	result, err := handler(context.Background(), callRequest(positionArgs()))
	require.NoError(t, err)
	assert.True(t, stub.lastIncludeDeclaration)
	assert.Contains(t, resultText(t, result), "2 reference(s)")

	args := positionArgs()
	args["include_declaration"] = false
	_, err = handler(context.Background(), callRequest(args))
	require.NoError(t, err)
	assert.False(t, stub.lastIncludeDeclaration)
}

func TestSymbolsToolIndentsHierarchy(t *testing.T) {
	stub := &stubBridge{
		symbols: []lsp.Symbol{
			{Name: "Server", Kind: protocol.SymbolKindStruct},
			{Name: "Start", Kind: protocol.SymbolKindMethod, Depth: 1, ContainerName: "Server"},
		},
	}
	_, handler := SymbolsTool(stub)

	result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Server [Struct]")
	assert.Contains(t, text, "\n  Start [Method]")
}

func TestSymbolsToolPassesQuery(t *testing.T) {
	stub := &stubBridge{}
	_, handler := SymbolsTool(stub)

	result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go", "query": "Handle"}))
	require.NoError(t, err)
	assert.Equal(t, "Handle", stub.lastQuery)
	assert.Contains(t, resultText(t, result), `No symbols matching "Handle"`)
}

func TestDiagnosticsToolDistinguishesEmptyFromUnpublished(t *testing.T) {
	t.Run("nothing published", func(t *testing.T) {
		_, handler := DiagnosticsTool(&stubBridge{published: false})

		result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, result), "No diagnostics have been published")
	})

	t.Run("published empty set", func(t *testing.T) {
		stub := &stubBridge{
			published:   true,
			diagnostics: lsp.FileDiagnostics{URI: "file:///workspace/main.go", ReceivedAt: time.Now()},
		}
		_, handler := DiagnosticsTool(stub)

		result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, result), "No diagnostics for")
	})

	t.Run("published diagnostics", func(t *testing.T) {
		stub := &stubBridge{
			published: true,
			diagnostics: lsp.FileDiagnostics{
				URI:         "file:///workspace/main.go",
				Diagnostics: []protocol.Diagnostic{{Message: "undefined: foo"}},
			},
		}
		_, handler := DiagnosticsTool(stub)

		result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
		require.NoError(t, err)

		text := resultText(t, result)
		assert.Contains(t, text, "1 diagnostic(s)")
		assert.Contains(t, text, "undefined: foo")
	})

	t.Run("severity renders by name", func(t *testing.T) {
		sev := protocol.DiagnosticSeverityWarning
		stub := &stubBridge{
			published: true,
			diagnostics: lsp.FileDiagnostics{
				URI: "file:///workspace/main.go",
				Diagnostics: []protocol.Diagnostic{{
					Range: protocol.Range{
						Start: protocol.Position{Line: 3, Character: 0},
						End:   protocol.Position{Line: 3, Character: 10},
					},
					Severity: &sev,
					Message:  "x declared and not used",
				}},
			},
		}
		_, handler := DiagnosticsTool(stub)

		result, err := handler(context.Background(), callRequest(map[string]any{"file": "/workspace/main.go"}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		text := resultText(t, result)
		assert.Contains(t, text, `"severity": "Warning"`)
		assert.Contains(t, text, "x declared and not used")
		assert.Contains(t, text, `"line": 3`)
	})
}

func TestSeverityName(t *testing.T) {
	assert.Empty(t, severityName(nil))

	for want, value := range map[string]protocol.DiagnosticSeverity{
		"Error":       protocol.DiagnosticSeverityError,
		"Warning":     protocol.DiagnosticSeverityWarning,
		"Information": protocol.DiagnosticSeverityInformation,
		"Hint":        protocol.DiagnosticSeverityHint,
	} {
		v := value
		assert.Equal(t, want, severityName(&v))
	}
}

func TestServersTool(t *testing.T) {
	stub := &stubBridge{
		servers: []types.ServerInfo{
			{Name: "gopls", Command: "gopls", Extensions: []string{".go"}, State: "Ready"},
		},
	}
	_, handler := ServersTool(stub)

	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, `"gopls"`)
	assert.Contains(t, text, `"Ready"`)
}

func TestServersToolEmpty(t *testing.T) {
	_, handler := ServersTool(&stubBridge{})

	result, err := handler(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No language servers configured", resultText(t, result))
}

func TestExtractHoverContentMarkedStrings(t *testing.T) {
	hover := &protocol.Hover{
		Contents: protocol.Or3[protocol.MarkupContent, protocol.MarkedString, []protocol.MarkedString]{
			Value: []protocol.MarkedString{
				{Value: protocol.MarkedStringWithLanguage{Language: "go", Value: "func Dial(addr string) error"}},
				{Value: "Dial connects to the remote address."},
			},
		},
	}

	text := extractHoverContent(hover)
	assert.Contains(t, text, "```go\nfunc Dial(addr string) error\n```")
	assert.Contains(t, text, "Dial connects to the remote address.")
}

func TestSymbolKindNameFallback(t *testing.T) {
	assert.Equal(t, "Function", symbolKindName(protocol.SymbolKindFunction))
	assert.Equal(t, "Kind(99)", symbolKindName(protocol.SymbolKind(99)))
}
