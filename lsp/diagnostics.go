package lsp

import (
	"sync"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// FileDiagnostics is the cached state for one document: the full set from the
// most recent publishDiagnostics notification, never a merge of several.
type FileDiagnostics struct {
	URI         string
	Version     *int32
	Diagnostics []protocol.Diagnostic
	ReceivedAt  time.Time
}

// DiagnosticsCache stores the latest pushed diagnostics per document URI.
// One cache serves the whole bridge: every session's read loop writes into
// it, and the lsp_diagnostics tool reads from it without touching a session.
type DiagnosticsCache struct {
	mu      sync.RWMutex
	entries map[string]FileDiagnostics
}

func NewDiagnosticsCache() *DiagnosticsCache {
	return &DiagnosticsCache{entries: make(map[string]FileDiagnostics)}
}

// Put replaces the entry for uri wholesale, matching the protocol's full
// snapshot semantics.
func (c *DiagnosticsCache) Put(uri string, version *int32, diags []protocol.Diagnostic) {
	entry := FileDiagnostics{
		URI:         uri,
		Version:     version,
		Diagnostics: append([]protocol.Diagnostic(nil), diags...),
		ReceivedAt:  time.Now(),
	}

	c.mu.Lock()
	c.entries[uri] = entry
	c.mu.Unlock()
}

// Get returns the latest entry for uri. A missing entry is not an error: the
// server may simply not have published anything yet.
func (c *DiagnosticsCache) Get(uri string) (FileDiagnostics, bool) {
	c.mu.RLock()
	entry, ok := c.entries[uri]
	c.mu.RUnlock()

	if !ok {
		return FileDiagnostics{URI: uri}, false
	}

	// Hand out a copy so a caller never observes a concurrent replacement.
	entry.Diagnostics = append([]protocol.Diagnostic(nil), entry.Diagnostics...)
	return entry, true
}

// Len reports how many documents currently have cached diagnostics.
func (c *DiagnosticsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
