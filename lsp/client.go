package lsp

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
	"github.com/Stryk91/lsp-mcp-bridge/security"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
)

const (
	clientName    = "lsp-mcp-bridge"
	clientVersion = "1.0.0"
)

// SessionState is the lifecycle position of one language server session.
// States only move forward; a session is never reused after Terminated.
type SessionState int32

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
	StateDegraded
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateDegraded:
		return "Degraded"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// documentState tracks what the server has been told about one document.
type documentState struct {
	version     int32
	fingerprint [32]byte
}

// LanguageClient is one session with one language server process: the
// spawned child, the framed JSON-RPC connection over its stdio, and the
// document state the server has been told about.
type LanguageClient struct {
	spec         *ServerSpec
	rootDir      string
	diagnostics  *DiagnosticsCache
	timeout      time.Duration
	allowedRoots []string

	proc *process
	conn *jsonrpc2.Conn

	nextID            atomic.Uint64
	state             atomic.Int32
	crashed           atomic.Bool
	shutdownRequested atomic.Bool

	mu        sync.Mutex
	documents map[string]*documentState

	closeOnce sync.Once
}

// NewLanguageClient spawns the server described by spec, runs the
// initialize/initialized handshake and returns a Ready session. filePath is
// the file that triggered the session; the workspace root is detected from
// it. On handshake failure the child is reaped before returning.
func NewLanguageClient(ctx context.Context, spec *ServerSpec, filePath string, diags *DiagnosticsCache, defaultTimeout time.Duration, allowedRoots []string) (*LanguageClient, error) {
	rootDir := detectProjectRoot(filePath, spec.RootPatterns)

	proc, err := startProcess(spec, rootDir)
	if err != nil {
		return nil, err
	}

	c := newLanguageClient(spec, rootDir, diags, defaultTimeout, allowedRoots)
	c.proc = proc
	c.attach(proc.stdio())

	go c.watchProcess()
	go c.watchDisconnect()

	if err := c.initialize(ctx); err != nil {
		c.transition(StateTerminated)
		c.conn.Close()
		proc.kill()
		<-proc.Done()
		return nil, err
	}

	return c, nil
}

func newLanguageClient(spec *ServerSpec, rootDir string, diags *DiagnosticsCache, defaultTimeout time.Duration, allowedRoots []string) *LanguageClient {
	timeout := defaultTimeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}
	return &LanguageClient{
		spec:         spec,
		rootDir:      rootDir,
		diagnostics:  diags,
		timeout:      timeout,
		allowedRoots: allowedRoots,
		documents:    make(map[string]*documentState),
	}
}

func (c *LanguageClient) attach(rwc io.ReadWriteCloser) {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	c.conn = jsonrpc2.NewConn(context.Background(), stream, &serverHandler{client: c})
}

// Spec returns the configuration this session was built from.
func (c *LanguageClient) Spec() *ServerSpec { return c.spec }

// RootDir returns the workspace root announced to the server.
func (c *LanguageClient) RootDir() string { return c.rootDir }

// State returns the current lifecycle state.
func (c *LanguageClient) State() SessionState {
	return SessionState(c.state.Load())
}

// Usable reports whether the session can still serve requests.
func (c *LanguageClient) Usable() bool { return c.State() == StateReady }

// transition advances the state machine. Backward moves are refused, so a
// late Degraded never overwrites Terminated.
func (c *LanguageClient) transition(next SessionState) bool {
	for {
		cur := c.state.Load()
		if int32(next) <= cur {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			logger.Debug("session", c.spec.Name, "state:", SessionState(cur).String(), "->", next.String())
			return true
		}
	}
}

func (c *LanguageClient) initialize(ctx context.Context) error {
	c.transition(StateInitializing)

	rootURI := utils.PathToURI(c.rootDir)

	params := initializeParams{
		ClientInfo: &clientInfo{Name: clientName, Version: clientVersion},
		RootUri:    rootURI,
		WorkspaceFolders: []workspaceFolder{{
			Uri:  rootURI,
			Name: filepath.Base(c.rootDir),
		}},
		Capabilities: defaultCapabilities(),
	}
	if c.proc != nil {
		pid := int32(c.proc.cmd.Process.Pid)
		params.ProcessId = &pid
	}
	if len(c.spec.InitializationOptions) > 0 {
		params.InitializationOptions = c.spec.InitializationOptions
	}

	var result struct {
		Capabilities json.RawMessage `json:"capabilities"`
		ServerInfo   *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return err
	}

	if err := c.notify("initialized", struct{}{}); err != nil {
		return err
	}

	if result.ServerInfo != nil {
		logger.Info("session", c.spec.Name, "initialized:", result.ServerInfo.Name, result.ServerInfo.Version)
	} else {
		logger.Info("session", c.spec.Name, "initialized")
	}

	c.transition(StateReady)
	return nil
}

func defaultCapabilities() clientCapabilities {
	return clientCapabilities{
		Workspace: &workspaceCapabilities{
			WorkspaceFolders: true,
		},
		TextDocument: &textDocumentCapabilities{
			Synchronization: &syncCapabilities{},
			Hover: &hoverCapabilities{
				ContentFormat: []string{"markdown", "plaintext"},
			},
			Definition: &definitionCapabilities{LinkSupport: true},
			References: &referencesCapabilities{},
			DocumentSymbol: &documentSymbolCapabilities{
				HierarchicalDocumentSymbolSupport: true,
			},
			PublishDiagnostics: &publishDiagnosticsCapabilities{
				RelatedInformation: true,
				VersionSupport:     true,
			},
		},
	}
}

// gate refuses work on a session that can no longer serve it.
func (c *LanguageClient) gate() error {
	s := c.State()
	if s != StateDegraded && s != StateTerminated {
		return nil
	}
	if c.crashed.Load() {
		return NewError(KindCrashed, c.spec.Command+" is no longer running", c.procExitErr())
	}
	return Errorf(KindDegraded, "session for %s is %s", c.spec.Name, s)
}

// call sends one request under the per-request deadline and maps every
// failure onto the session error kinds. The request id is picked here so a
// timeout can name it in $/cancelRequest.
func (c *LanguageClient) call(ctx context.Context, method string, params, result any) error {
	if err := c.gate(); err != nil {
		return err
	}

	id := jsonrpc2.ID{Num: c.nextID.Add(1)}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.conn.Call(ctx, method, params, result, jsonrpc2.PickID(id))
	if err == nil {
		return nil
	}
	return c.mapCallError(ctx, method, id, err)
}

func (c *LanguageClient) mapCallError(ctx context.Context, method string, id jsonrpc2.ID, err error) error {
	var rpcErr *jsonrpc2.Error
	switch {
	case errors.As(err, &rpcErr):
		return NewError(KindUpstreamError, fmt.Sprintf("%s failed with code %d", method, rpcErr.Code), rpcErr)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.cancelUpstream(id)
		return Errorf(KindTimeout, "%s did not answer within %s", method, c.timeout)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		c.cancelUpstream(id)
		return NewError(KindCancelled, method+" cancelled", err)
	case c.crashed.Load():
		return NewError(KindCrashed, c.spec.Command+" exited while "+method+" was pending", c.procExitErr())
	case errors.Is(err, jsonrpc2.ErrClosed):
		return NewError(KindCancelled, method+" abandoned during session teardown", err)
	default:
		return NewError(KindProtocolError, method+" failed", err)
	}
}

// cancelUpstream tells the server to stop working on an abandoned request.
// Best effort: any late response is dropped by the connection anyway.
func (c *LanguageClient) cancelUpstream(id jsonrpc2.ID) {
	_ = c.conn.Notify(context.Background(), "$/cancelRequest", map[string]any{"id": id.Num})
}

func (c *LanguageClient) notify(method string, params any) error {
	if err := c.conn.Notify(context.Background(), method, params); err != nil {
		return NewError(KindProtocolError, "notify "+method, err)
	}
	return nil
}

func (c *LanguageClient) procExitErr() error {
	if c.proc == nil {
		return nil
	}
	return c.proc.ExitErr()
}

// EnsureDocumentSynced brings the server's view of path in line with the file
// on disk: didOpen the first time a document is seen, didChange with a bumped
// version only when the content fingerprint moved, nothing otherwise.
// Returns the document URI used on the wire.
func (c *LanguageClient) EnsureDocumentSynced(path string) (string, error) {
	if err := c.gate(); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}

	if len(c.allowedRoots) > 0 {
		allowed := false
		for _, root := range c.allowedRoots {
			if security.IsWithinAllowedDirectory(abs, root) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("path %s is outside the allowed directories", abs)
		}
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", abs, err)
	}

	uri := utils.PathToURI(abs)
	sum := sha256.Sum256(content)

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, seen := c.documents[uri]
	switch {
	case !seen:
		c.documents[uri] = &documentState{version: 1, fingerprint: sum}
		item := textDocumentItem{
			Uri:        uri,
			LanguageId: languageIdForPath(abs),
			Version:    1,
			Text:       string(content),
		}
		if err := c.notify("textDocument/didOpen", didOpenParams{TextDocument: item}); err != nil {
			delete(c.documents, uri)
			return "", err
		}
	case doc.fingerprint != sum:
		doc.version++
		doc.fingerprint = sum
		params := didChangeParams{
			TextDocument:   versionedTextDocumentIdentifier{Uri: uri, Version: doc.version},
			ContentChanges: []contentChange{{Text: string(content)}},
		}
		if err := c.notify("textDocument/didChange", params); err != nil {
			return "", err
		}
	}

	return uri, nil
}

// Resync re-reads path and pushes a didChange if the content moved. Used by
// the document watcher; a document the server has never seen is skipped.
func (c *LanguageClient) Resync(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	_, seen := c.documents[utils.PathToURI(abs)]
	c.mu.Unlock()
	if !seen {
		return nil
	}

	_, err = c.EnsureDocumentSynced(abs)
	return err
}

// Hover returns the hover content at a position, or nil when the server has
// nothing to show there.
func (c *LanguageClient) Hover(ctx context.Context, path string, line, character uint32) (*protocol.Hover, error) {
	uri, err := c.EnsureDocumentSynced(path)
	if err != nil {
		return nil, err
	}

	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{Uri: uri},
		Position:     position{Line: line, Character: character},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/hover", params, &raw); err != nil {
		return nil, err
	}
	if isNullResult(raw) {
		return nil, nil
	}

	var hov protocol.Hover
	if err := json.Unmarshal(raw, &hov); err != nil {
		return nil, NewError(KindProtocolError, "malformed hover result", err)
	}
	return &hov, nil
}

// Definition resolves the definition sites for the symbol at a position.
// Servers answer with a single Location, a Location array or LocationLinks;
// all three shapes collapse to a flat Location list.
func (c *LanguageClient) Definition(ctx context.Context, path string, line, character uint32) ([]protocol.Location, error) {
	uri, err := c.EnsureDocumentSynced(path)
	if err != nil {
		return nil, err
	}

	params := textDocumentPositionParams{
		TextDocument: textDocumentIdentifier{Uri: uri},
		Position:     position{Line: line, Character: character},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/definition", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// References lists every reference to the symbol at a position, including
// the declaration when includeDeclaration is set.
func (c *LanguageClient) References(ctx context.Context, path string, line, character uint32, includeDeclaration bool) ([]protocol.Location, error) {
	uri, err := c.EnsureDocumentSynced(path)
	if err != nil {
		return nil, err
	}

	params := referenceParams{
		textDocumentPositionParams: textDocumentPositionParams{
			TextDocument: textDocumentIdentifier{Uri: uri},
			Position:     position{Line: line, Character: character},
		},
		Context: referenceContext{IncludeDeclaration: includeDeclaration},
	}

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/references", params, &raw); err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// Symbol is the uniform view of one document symbol across the two result
// shapes servers may return. Depth carries the nesting level when the server
// answered hierarchically, zero otherwise.
type Symbol struct {
	Name           string
	Kind           protocol.SymbolKind
	ContainerName  string
	Range          protocol.Range
	SelectionRange protocol.Range
	Depth          int
}

// DocumentSymbols returns the symbols of a document in server order,
// flattening a hierarchical answer depth-first.
func (c *LanguageClient) DocumentSymbols(ctx context.Context, path string) ([]Symbol, error) {
	uri, err := c.EnsureDocumentSynced(path)
	if err != nil {
		return nil, err
	}

	params := documentSymbolParams{TextDocument: textDocumentIdentifier{Uri: uri}}

	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}
	return decodeSymbols(raw)
}

// watchProcess reacts to the child exiting. An exit that was not requested
// marks the session crashed so pending and future calls fail fast.
func (c *LanguageClient) watchProcess() {
	<-c.proc.Done()

	if !c.shutdownRequested.Load() {
		c.crashed.Store(true)
		logger.Error("language server", c.spec.Name, "exited unexpectedly:", c.proc.ExitErr())
	}

	c.transition(StateTerminated)
	c.conn.Close()
}

// watchDisconnect distinguishes a dead stream over a live process from a
// plain process exit. The grace period lets watchProcess win the race when
// the stream died because the child did.
func (c *LanguageClient) watchDisconnect() {
	<-c.conn.DisconnectNotify()

	if c.proc == nil {
		if !c.shutdownRequested.Load() {
			c.crashed.Store(true)
		}
		c.transition(StateTerminated)
		return
	}

	select {
	case <-c.proc.Done():
		// watchProcess handles it.
	case <-time.After(200 * time.Millisecond):
		if c.transition(StateDegraded) {
			logger.Error("session", c.spec.Name, "lost its stream while the process is alive, degrading")
		}
	}
}

// Close runs the polite shutdown/exit handshake, then tears the session down
// regardless of how far the handshake got. Safe to call more than once.
func (c *LanguageClient) Close() error {
	c.closeOnce.Do(func() {
		c.shutdownRequested.Store(true)

		if c.State() == StateReady {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			var discard json.RawMessage
			if err := c.conn.Call(ctx, "shutdown", nil, &discard); err != nil {
				logger.Debug("shutdown request for", c.spec.Name, "failed:", err)
			}
			cancel()
			_ = c.conn.Notify(context.Background(), "exit", nil)
		}

		c.transition(StateTerminated)
		c.conn.Close()

		if c.proc != nil {
			c.proc.awaitExit(3 * time.Second)
		}
	})
	return nil
}
