package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errNoReply makes a scripted handler leave the request unanswered.
var errNoReply = errors.New("no reply")

// fakeServer speaks real framed JSON-RPC on the far side of a net.Pipe, so
// the client under test exercises its actual wire path.
type fakeServer struct {
	t    *testing.T
	conn *jsonrpc2.Conn

	mu       sync.Mutex
	received []receivedMessage
	handlers map[string]func(params json.RawMessage) (any, error)
}

type receivedMessage struct {
	method string
	params json.RawMessage
}

func (fs *fakeServer) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params json.RawMessage
	if req.Params != nil {
		params = append(json.RawMessage(nil), *req.Params...)
	}

	fs.mu.Lock()
	fs.received = append(fs.received, receivedMessage{method: req.Method, params: params})
	handler := fs.handlers[req.Method]
	fs.mu.Unlock()

	if req.Notif {
		return
	}

	if handler == nil {
		_ = conn.Reply(ctx, req.ID, nil)
		return
	}

	result, err := handler(params)
	switch {
	case errors.Is(err, errNoReply):
	case err != nil:
		var rpcErr *jsonrpc2.Error
		if !errors.As(err, &rpcErr) {
			rpcErr = &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		_ = conn.ReplyWithError(ctx, req.ID, rpcErr)
	default:
		_ = conn.Reply(ctx, req.ID, result)
	}
}

func (fs *fakeServer) on(method string, handler func(params json.RawMessage) (any, error)) {
	fs.mu.Lock()
	fs.handlers[method] = handler
	fs.mu.Unlock()
}

func (fs *fakeServer) count(method string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n := 0
	for _, msg := range fs.received {
		if msg.method == method {
			n++
		}
	}
	return n
}

func (fs *fakeServer) lastParams(method string) json.RawMessage {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for i := len(fs.received) - 1; i >= 0; i-- {
		if fs.received[i].method == method {
			return fs.received[i].params
		}
	}
	return nil
}

// newFakeSession wires a client to a fakeServer through an in-memory pipe
// and completes the handshake.
func newFakeSession(t *testing.T) (*LanguageClient, *fakeServer) {
	t.Helper()

	clientSide, serverSide := net.Pipe()

	fs := &fakeServer{
		t:        t,
		handlers: make(map[string]func(params json.RawMessage) (any, error)),
	}
	fs.on("initialize", func(json.RawMessage) (any, error) {
		return map[string]any{
			"capabilities": map[string]any{},
			"serverInfo":   map[string]any{"name": "fake-ls", "version": "0.1"},
		}, nil
	})
	fs.conn = jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.AsyncHandler(fs))

	spec := &ServerSpec{Name: "fake", Command: "fake-ls"}
	client := newLanguageClient(spec, t.TempDir(), NewDiagnosticsCache(), 500*time.Millisecond, nil)
	client.attach(clientSide)

	go client.watchDisconnect()

	require.NoError(t, client.initialize(context.Background()))
	require.Equal(t, StateReady, client.State())

	t.Cleanup(func() {
		client.conn.Close()
		fs.conn.Close()
	})

	return client, fs
}

func writeSource(t *testing.T, client *LanguageClient, name, content string) string {
	t.Helper()

	path := filepath.Join(client.RootDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func markupHover(text string) map[string]any {
	return map[string]any{
		"contents": map[string]any{"kind": "markdown", "value": text},
	}
}

func TestClientHandshake(t *testing.T) {
	client, fs := newFakeSession(t)

	assert.Equal(t, 1, fs.count("initialize"))
	assert.Equal(t, 1, fs.count("initialized"))

	var init struct {
		ClientInfo struct {
			Name string `json:"name"`
		} `json:"clientInfo"`
		RootUri          string `json:"rootUri"`
		WorkspaceFolders []struct {
			Uri string `json:"uri"`
		} `json:"workspaceFolders"`
		Capabilities struct {
			TextDocument struct {
				Hover struct {
					ContentFormat []string `json:"contentFormat"`
				} `json:"hover"`
				DocumentSymbol struct {
					Hierarchical bool `json:"hierarchicalDocumentSymbolSupport"`
				} `json:"documentSymbol"`
				PublishDiagnostics struct {
					VersionSupport bool `json:"versionSupport"`
				} `json:"publishDiagnostics"`
			} `json:"textDocument"`
		} `json:"capabilities"`
	}
	require.NoError(t, json.Unmarshal(fs.lastParams("initialize"), &init))
	assert.Equal(t, clientName, init.ClientInfo.Name)
	assert.NotEmpty(t, init.RootUri)
	require.Len(t, init.WorkspaceFolders, 1)
	assert.Equal(t, init.RootUri, init.WorkspaceFolders[0].Uri)

	// The advertised capabilities must survive serialization intact.
	caps := init.Capabilities.TextDocument
	assert.Equal(t, []string{"markdown", "plaintext"}, caps.Hover.ContentFormat)
	assert.True(t, caps.DocumentSymbol.Hierarchical)
	assert.True(t, caps.PublishDiagnostics.VersionSupport)

	assert.True(t, client.Usable())
}

func TestClientDidOpenExactlyOnce(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return markupHover("func main()"), nil
	})

	for i := 0; i < 3; i++ {
		_, err := client.Hover(context.Background(), path, 0, 8)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fs.count("textDocument/didOpen"))
	assert.Equal(t, 0, fs.count("textDocument/didChange"))

	var open struct {
		TextDocument struct {
			Uri        string `json:"uri"`
			LanguageId string `json:"languageId"`
			Version    int32  `json:"version"`
			Text       string `json:"text"`
		} `json:"textDocument"`
	}
	require.NoError(t, json.Unmarshal(fs.lastParams("textDocument/didOpen"), &open))
	assert.Equal(t, "go", open.TextDocument.LanguageId)
	assert.Equal(t, int32(1), open.TextDocument.Version)
	assert.Equal(t, "package main\n", open.TextDocument.Text)
}

func TestClientDidChangeOnlyWhenContentMoves(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return markupHover("x"), nil
	})

	_, err := client.Hover(context.Background(), path, 0, 0)
	require.NoError(t, err)

	// Same content on disk: no didChange.
	_, err = client.Hover(context.Background(), path, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, fs.count("textDocument/didChange"))

	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	_, err = client.Hover(context.Background(), path, 2, 5)
	require.NoError(t, err)
	require.Equal(t, 1, fs.count("textDocument/didChange"))

	var change struct {
		TextDocument struct {
			Version int32 `json:"version"`
		} `json:"textDocument"`
		ContentChanges []struct {
			Text string `json:"text"`
		} `json:"contentChanges"`
	}
	require.NoError(t, json.Unmarshal(fs.lastParams("textDocument/didChange"), &change))
	assert.Equal(t, int32(2), change.TextDocument.Version)
	require.Len(t, change.ContentChanges, 1)
	assert.Contains(t, change.ContentChanges[0].Text, "func main()")
}

func TestClientHoverNullResult(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return nil, nil
	})

	hover, err := client.Hover(context.Background(), path, 0, 0)
	require.NoError(t, err)
	assert.Nil(t, hover)
}

func TestClientDefinitionShapes(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	target := map[string]any{
		"start": map[string]any{"line": 4, "character": 5},
		"end":   map[string]any{"line": 4, "character": 9},
	}

	tests := []struct {
		name     string
		result   any
		wantUris []string
		wantLine uint32
	}{
		{
			name: "single location object",
			result: map[string]any{
				"uri":   "file:///workspace/def.go",
				"range": target,
			},
			wantUris: []string{"file:///workspace/def.go"},
			wantLine: 4,
		},
		{
			name: "location array",
			result: []any{
				map[string]any{"uri": "file:///workspace/a.go", "range": target},
				map[string]any{"uri": "file:///workspace/b.go", "range": target},
			},
			wantUris: []string{"file:///workspace/a.go", "file:///workspace/b.go"},
			wantLine: 4,
		},
		{
			name: "location links use selection range",
			result: []any{
				map[string]any{
					"targetUri": "file:///workspace/linked.go",
					"targetRange": map[string]any{
						"start": map[string]any{"line": 0, "character": 0},
						"end":   map[string]any{"line": 20, "character": 0},
					},
					"targetSelectionRange": target,
				},
			},
			wantUris: []string{"file:///workspace/linked.go"},
			wantLine: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs.on("textDocument/definition", func(json.RawMessage) (any, error) {
				return tt.result, nil
			})

			locs, err := client.Definition(context.Background(), path, 0, 0)
			require.NoError(t, err)
			require.Len(t, locs, len(tt.wantUris))
			for i, want := range tt.wantUris {
				assert.Equal(t, want, string(locs[i].Uri))
				assert.Equal(t, tt.wantLine, locs[i].Range.Start.Line)
			}
		})
	}
}

func TestClientReferencesIncludeDeclaration(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/references", func(json.RawMessage) (any, error) {
		return []any{}, nil
	})

	_, err := client.References(context.Background(), path, 0, 0, true)
	require.NoError(t, err)

	var params struct {
		Context struct {
			IncludeDeclaration bool `json:"includeDeclaration"`
		} `json:"context"`
	}
	require.NoError(t, json.Unmarshal(fs.lastParams("textDocument/references"), &params))
	assert.True(t, params.Context.IncludeDeclaration)
}

func TestClientDocumentSymbolShapes(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	rng := map[string]any{
		"start": map[string]any{"line": 2, "character": 0},
		"end":   map[string]any{"line": 8, "character": 1},
	}

	t.Run("hierarchical result is flattened", func(t *testing.T) {
		fs.on("textDocument/documentSymbol", func(json.RawMessage) (any, error) {
			return []any{
				map[string]any{
					"name":           "Server",
					"kind":           23,
					"range":          rng,
					"selectionRange": rng,
					"children": []any{
						map[string]any{
							"name":           "Start",
							"kind":           6,
							"range":          rng,
							"selectionRange": rng,
						},
					},
				},
			}, nil
		})

		symbols, err := client.DocumentSymbols(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, symbols, 2)
		assert.Equal(t, "Server", symbols[0].Name)
		assert.Equal(t, 0, symbols[0].Depth)
		assert.Equal(t, "Start", symbols[1].Name)
		assert.Equal(t, 1, symbols[1].Depth)
		assert.Equal(t, "Server", symbols[1].ContainerName)
		assert.Equal(t, protocol.SymbolKindMethod, symbols[1].Kind)
	})

	t.Run("flat result maps one to one", func(t *testing.T) {
		fs.on("textDocument/documentSymbol", func(json.RawMessage) (any, error) {
			return []any{
				map[string]any{
					"name":          "main",
					"kind":          12,
					"containerName": "main",
					"location": map[string]any{
						"uri":   "file:///workspace/main.go",
						"range": rng,
					},
				},
			}, nil
		})

		symbols, err := client.DocumentSymbols(context.Background(), path)
		require.NoError(t, err)
		require.Len(t, symbols, 1)
		assert.Equal(t, "main", symbols[0].Name)
		assert.Equal(t, protocol.SymbolKindFunction, symbols[0].Kind)
		assert.Equal(t, "main", symbols[0].ContainerName)
		assert.Equal(t, uint32(2), symbols[0].Range.Start.Line)
	})
}

func TestClientUpstreamError(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return nil, &jsonrpc2.Error{Code: -32602, Message: "position out of range"}
	})

	_, err := client.Hover(context.Background(), path, 999, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindUpstreamError))
	assert.Contains(t, err.Error(), "position out of range")

	// The session survives an upstream error.
	assert.True(t, client.Usable())
}

func TestClientTimeoutSendsCancel(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return nil, errNoReply
	})

	start := time.Now()
	_, err := client.Hover(context.Background(), path, 0, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Eventually(t, func() bool {
		return fs.count("$/cancelRequest") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, client.Usable(), "a timeout must not kill the session")
}

func TestClientCallerCancellation(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return nil, errNoReply
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Hover(ctx, path, 0, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCancelled))
}

func TestClientPipelinedRequests(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(params json.RawMessage) (any, error) {
		var p struct {
			Position struct {
				Line uint32 `json:"line"`
			} `json:"position"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.Position.Line == 0 {
			time.Sleep(50 * time.Millisecond)
			return markupHover("first"), nil
		}
		return markupHover("second"), nil
	})

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := range results {
		wg.Add(1)
		go func(line uint32) {
			defer wg.Done()
			hover, err := client.Hover(context.Background(), path, line, 0)
			if assert.NoError(t, err) && assert.NotNil(t, hover) {
				if mc, ok := hover.Contents.Value.(protocol.MarkupContent); ok {
					results[line] = mc.Value
				}
			}
		}(uint32(i))
	}
	wg.Wait()

	assert.Equal(t, "first", results[0])
	assert.Equal(t, "second", results[1])
}

func TestClientStreamLossTerminatesSession(t *testing.T) {
	client, fs := newFakeSession(t)

	fs.conn.Close()

	assert.Eventually(t, func() bool {
		return client.State() == StateTerminated
	}, 2*time.Second, 10*time.Millisecond)

	path := writeSource(t, client, "main.go", "package main\n")
	_, err := client.Hover(context.Background(), path, 0, 0)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCrashed))
}

func TestClientCloseRunsShutdownHandshake(t *testing.T) {
	client, fs := newFakeSession(t)

	fs.on("shutdown", func(json.RawMessage) (any, error) {
		return nil, nil
	})

	require.NoError(t, client.Close())

	assert.Equal(t, 1, fs.count("shutdown"))
	assert.Equal(t, 1, fs.count("exit"))
	assert.Equal(t, StateTerminated, client.State())

	// Close again is a no-op.
	require.NoError(t, client.Close())
	assert.Equal(t, 1, fs.count("shutdown"))
}

func TestClientRequestIDsIncrease(t *testing.T) {
	client, fs := newFakeSession(t)
	path := writeSource(t, client, "main.go", "package main\n")

	fs.on("textDocument/hover", func(json.RawMessage) (any, error) {
		return markupHover("x"), nil
	})

	before := client.nextID.Load()
	for i := 0; i < 3; i++ {
		_, err := client.Hover(context.Background(), path, 0, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, before+3, client.nextID.Load())
}
