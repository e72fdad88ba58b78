package types

import (
	"context"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/Stryk91/lsp-mcp-bridge/lsp"
)

// ServerInfo is the lsp_servers view of one configured language server.
type ServerInfo struct {
	Name       string   `json:"name"`
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	Extensions []string `json:"extensions"`
	State      string   `json:"state"`
}

// BridgeInterface is what the MCP tool handlers see of the bridge. Paths are
// host paths as the MCP client knows them; locations in results are mapped
// back to host form.
type BridgeInterface interface {
	Hover(ctx context.Context, path string, line, column uint32) (*protocol.Hover, error)
	Definition(ctx context.Context, path string, line, column uint32) ([]protocol.Location, error)
	References(ctx context.Context, path string, line, column uint32, includeDeclaration bool) ([]protocol.Location, error)
	DocumentSymbols(ctx context.Context, path, query string) ([]lsp.Symbol, error)
	Diagnostics(path string) (lsp.FileDiagnostics, bool, error)
	Servers() []ServerInfo
}
