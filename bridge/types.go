package bridge

import (
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/lsp"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
	"github.com/Stryk91/lsp-mcp-bridge/watcher"
)

// MCPLSPBridge combines the MCP server with the language server sessions it
// fronts. Sessions are keyed by server command line, so extensions that
// share a server share one process.
type MCPLSPBridge struct {
	config             *lsp.BridgeConfig
	registry           *lsp.ServerRegistry
	diagnostics        *lsp.DiagnosticsCache
	pathMapper         *utils.PathMapper
	allowedDirectories []string

	server  *server.MCPServer
	watcher *watcher.DocumentWatcher

	mu       sync.Mutex
	sessions map[string]*sessionSlot
}

// sessionSlot serializes session creation for one server. Concurrent
// requests either join the live session or wait for the one being created;
// after failures the slot carries the backoff window.
type sessionSlot struct {
	mu       sync.Mutex
	client   *lsp.LanguageClient
	failures int
	retryAt  time.Time
}
