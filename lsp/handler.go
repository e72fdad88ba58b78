package lsp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
)

// serverHandler receives everything the language server sends on its own
// initiative. It runs on the connection's read loop, so diagnostics land in
// the cache in arrival order and the newest snapshot always wins.
type serverHandler struct {
	client *LanguageClient
}

type publishDiagnosticsParams struct {
	Uri         string                `json:"uri"`
	Version     *int32                `json:"version"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics"`
}

type messageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

func (h *serverHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "textDocument/publishDiagnostics":
		if req.Params == nil {
			return
		}
		var params publishDiagnosticsParams
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			logger.Warn("publishDiagnostics from", h.client.spec.Name, "has bad params:", err)
			return
		}
		h.client.diagnostics.Put(utils.NormalizeURI(params.Uri), params.Version, params.Diagnostics)

	case "window/showMessage", "window/logMessage":
		var params messageParams
		if req.Params != nil && json.Unmarshal(*req.Params, &params) == nil {
			logger.Info("["+h.client.spec.Name+"]", params.Message)
		}

	case "workspace/configuration":
		if req.Notif {
			return
		}
		// One null per requested item; servers read that as "use defaults".
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		if req.Params != nil {
			_ = json.Unmarshal(*req.Params, &params)
		}
		if err := conn.Reply(ctx, req.ID, make([]any, len(params.Items))); err != nil {
			logger.Debug("reply to workspace/configuration failed:", err)
		}

	case "workspace/workspaceFolders":
		if req.Notif {
			return
		}
		folders := []workspaceFolder{{
			Uri:  utils.PathToURI(h.client.rootDir),
			Name: filepath.Base(h.client.rootDir),
		}}
		if err := conn.Reply(ctx, req.ID, folders); err != nil {
			logger.Debug("reply to workspace/workspaceFolders failed:", err)
		}

	default:
		if strings.HasPrefix(req.Method, "$/") {
			// Progress and other optional notifications.
			return
		}
		if req.Notif {
			logger.Debug("ignoring notification", req.Method, "from", h.client.spec.Name)
			return
		}
		// Unknown server request: acknowledge with null so the server does
		// not stall waiting on us.
		if err := conn.Reply(ctx, req.ID, nil); err != nil {
			logger.Debug("reply to", req.Method, "failed:", err)
		}
	}
}
