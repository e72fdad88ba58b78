package bridge

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
	"github.com/Stryk91/lsp-mcp-bridge/lsp"
	"github.com/Stryk91/lsp-mcp-bridge/types"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
	"github.com/Stryk91/lsp-mcp-bridge/watcher"
)

// Backoff after repeated session failures never grows past this.
const maxRetryBackoff = 2 * time.Minute

// NewMCPLSPBridge builds the bridge from a validated configuration. Sessions
// are created lazily on the first tool call that needs them.
func NewMCPLSPBridge(config *lsp.BridgeConfig, allowedDirectories []string, pathMapper *utils.PathMapper) *MCPLSPBridge {
	b := &MCPLSPBridge{
		config:             config,
		registry:           lsp.NewServerRegistry(config),
		diagnostics:        lsp.NewDiagnosticsCache(),
		pathMapper:         pathMapper,
		allowedDirectories: allowedDirectories,
		sessions:           make(map[string]*sessionSlot),
	}

	if config.Global.WatchDocuments {
		mode := watcher.ParseMode(config.Global.WatchMode)
		w, err := watcher.New(mode, config.WatchInterval(), b.resyncDocument)
		if err != nil {
			logger.Warn("document watcher disabled:", err)
		} else {
			b.watcher = w
			logger.Info("document watcher running in", string(w.Mode()), "mode")
		}
	}

	return b
}

// SetServer stores the MCP server reference after setup.
func (b *MCPLSPBridge) SetServer(s *server.MCPServer) {
	b.mu.Lock()
	b.server = s
	b.mu.Unlock()
}

// GetServer returns the MCP server the bridge is registered on.
func (b *MCPLSPBridge) GetServer() *server.MCPServer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.server
}

// resyncDocument pushes an externally changed file to every live session.
// Sessions that never opened the document skip it.
func (b *MCPLSPBridge) resyncDocument(path string) {
	for _, slot := range b.slots() {
		slot.mu.Lock()
		client := slot.client
		slot.mu.Unlock()

		if client == nil || !client.Usable() {
			continue
		}
		if err := client.Resync(path); err != nil {
			logger.Warn("resync of", path, "failed:", err)
		}
	}
}

func (b *MCPLSPBridge) slots() []*sessionSlot {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*sessionSlot, 0, len(b.sessions))
	for _, slot := range b.sessions {
		out = append(out, slot)
	}
	return out
}

func (b *MCPLSPBridge) slot(key string) *sessionSlot {
	b.mu.Lock()
	defer b.mu.Unlock()

	slot, ok := b.sessions[key]
	if !ok {
		slot = &sessionSlot{}
		b.sessions[key] = slot
	}
	return slot
}

// sessionFor maps a host path into the bridge's filesystem view, resolves the
// responsible server and returns its live session, creating one if needed.
// The second return is the local path tool operations should use.
func (b *MCPLSPBridge) sessionFor(ctx context.Context, hostPath string) (*lsp.LanguageClient, string, error) {
	localPath, err := b.pathMapper.ToLocal(hostPath)
	if err != nil {
		return nil, "", err
	}

	spec, err := b.registry.ResolvePath(localPath)
	if err != nil {
		return nil, "", err
	}

	slot := b.slot(spec.Key())
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.client != nil && slot.client.Usable() {
		return slot.client, localPath, nil
	}

	if slot.client != nil {
		// Crashed or degraded: reap before respawning.
		logger.Warn("session for", spec.Name, "is", slot.client.State().String(), "- recreating")
		_ = slot.client.Close()
		slot.client = nil
	}

	if wait := time.Until(slot.retryAt); wait > 0 {
		return nil, "", lsp.Errorf(lsp.KindSpawnFailure,
			"%s failed %d times, next attempt in %s", spec.Name, slot.failures, wait.Round(time.Second))
	}

	client, err := lsp.NewLanguageClient(ctx, spec, localPath, b.diagnostics, b.config.RequestTimeout(), b.allowedDirectories)
	if err != nil {
		slot.failures++
		slot.retryAt = time.Now().Add(b.backoff(slot.failures))
		return nil, "", err
	}

	slot.client = client
	slot.failures = 0
	slot.retryAt = time.Time{}

	return client, localPath, nil
}

// backoff doubles per consecutive failure, capped both by the configured
// attempt ceiling and an absolute bound.
func (b *MCPLSPBridge) backoff(failures int) time.Duration {
	exponent := failures - 1
	if max := b.config.MaxRestartAttempts(); exponent > max {
		exponent = max
	}
	delay := b.config.RestartDelay() * time.Duration(math.Pow(2, float64(exponent)))
	if delay > maxRetryBackoff || delay <= 0 {
		delay = maxRetryBackoff
	}
	return delay
}

func (b *MCPLSPBridge) watchDocument(localPath string) {
	if b.watcher == nil {
		return
	}
	if err := b.watcher.Watch(localPath); err != nil {
		logger.Debug("cannot watch", localPath, ":", err)
	}
}

// Hover returns hover content for the symbol at a zero-based position.
func (b *MCPLSPBridge) Hover(ctx context.Context, path string, line, column uint32) (*protocol.Hover, error) {
	client, localPath, err := b.sessionFor(ctx, path)
	if err != nil {
		return nil, err
	}

	hover, err := client.Hover(ctx, localPath, line, column)
	if err != nil {
		return nil, err
	}
	b.watchDocument(localPath)

	return hover, nil
}

// Definition returns the definition sites for the symbol at a position, with
// URIs mapped back to host form.
func (b *MCPLSPBridge) Definition(ctx context.Context, path string, line, column uint32) ([]protocol.Location, error) {
	client, localPath, err := b.sessionFor(ctx, path)
	if err != nil {
		return nil, err
	}

	locs, err := client.Definition(ctx, localPath, line, column)
	if err != nil {
		return nil, err
	}
	b.watchDocument(localPath)

	return b.mapLocationsToHost(locs), nil
}

// References returns every reference to the symbol at a position.
func (b *MCPLSPBridge) References(ctx context.Context, path string, line, column uint32, includeDeclaration bool) ([]protocol.Location, error) {
	client, localPath, err := b.sessionFor(ctx, path)
	if err != nil {
		return nil, err
	}

	locs, err := client.References(ctx, localPath, line, column, includeDeclaration)
	if err != nil {
		return nil, err
	}
	b.watchDocument(localPath)

	return b.mapLocationsToHost(locs), nil
}

// DocumentSymbols lists a document's symbols, optionally filtered by a
// case-insensitive name substring.
func (b *MCPLSPBridge) DocumentSymbols(ctx context.Context, path, query string) ([]lsp.Symbol, error) {
	client, localPath, err := b.sessionFor(ctx, path)
	if err != nil {
		return nil, err
	}

	symbols, err := client.DocumentSymbols(ctx, localPath)
	if err != nil {
		return nil, err
	}
	b.watchDocument(localPath)

	return filterSymbols(symbols, query), nil
}

func filterSymbols(symbols []lsp.Symbol, query string) []lsp.Symbol {
	if query == "" {
		return symbols
	}

	needle := strings.ToLower(query)
	var filtered []lsp.Symbol
	for _, sym := range symbols {
		if strings.Contains(strings.ToLower(sym.Name), needle) {
			filtered = append(filtered, sym)
		}
	}
	return filtered
}

// Diagnostics returns the latest pushed diagnostics for a file. This is a
// pure cache read: no session is consulted and none is created, so an empty
// answer means "nothing published", not "file is clean".
func (b *MCPLSPBridge) Diagnostics(path string) (lsp.FileDiagnostics, bool, error) {
	localPath, err := b.pathMapper.ToLocal(path)
	if err != nil {
		return lsp.FileDiagnostics{}, false, err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return lsp.FileDiagnostics{}, false, fmt.Errorf("resolve %s: %w", localPath, err)
	}

	entry, ok := b.diagnostics.Get(utils.PathToURI(abs))
	entry.URI = b.pathMapper.URIToHost(entry.URI)

	return entry, ok, nil
}

// Servers describes every configured server and the state of its session,
// "not running" when none was ever spawned.
func (b *MCPLSPBridge) Servers() []types.ServerInfo {
	specs := b.registry.Specs()

	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]types.ServerInfo, 0, len(specs))
	for _, spec := range specs {
		info := types.ServerInfo{
			Name:       spec.Name,
			Command:    spec.Command,
			Args:       spec.Args,
			Extensions: spec.Extensions,
			State:      "not running",
		}
		if slot, ok := b.sessions[spec.Key()]; ok {
			slot.mu.Lock()
			if slot.client != nil {
				info.State = slot.client.State().String()
			}
			slot.mu.Unlock()
		}
		infos = append(infos, info)
	}
	return infos
}

// CloseAllSessions shuts every live session down politely. Called once on
// bridge teardown.
func (b *MCPLSPBridge) CloseAllSessions() {
	if b.watcher != nil {
		_ = b.watcher.Close()
	}

	for _, slot := range b.slots() {
		slot.mu.Lock()
		if slot.client != nil {
			_ = slot.client.Close()
			slot.client = nil
		}
		slot.mu.Unlock()
	}
}

func (b *MCPLSPBridge) mapLocationsToHost(locs []protocol.Location) []protocol.Location {
	if !b.pathMapper.Enabled() {
		return locs
	}
	for i := range locs {
		locs[i].Uri = protocol.DocumentUri(b.pathMapper.URIToHost(string(locs[i].Uri)))
	}
	return locs
}
