package lsp

import (
	"bytes"
	"encoding/json"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// Everything sent to the server is shaped here as plain structs: the generated
// protocol types are decode-only. Their enum marshalers call json.Marshal on
// themselves and recurse until the stack blows, so no protocol value may ever
// appear in an outgoing payload.

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type workspaceFolder struct {
	Uri  string `json:"uri"`
	Name string `json:"name"`
}

type initializeParams struct {
	ProcessId             *int32             `json:"processId,omitempty"`
	ClientInfo            *clientInfo        `json:"clientInfo,omitempty"`
	RootUri               string             `json:"rootUri,omitempty"`
	Capabilities          clientCapabilities `json:"capabilities"`
	WorkspaceFolders      []workspaceFolder  `json:"workspaceFolders,omitempty"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

type clientCapabilities struct {
	Workspace    *workspaceCapabilities    `json:"workspace,omitempty"`
	TextDocument *textDocumentCapabilities `json:"textDocument,omitempty"`
}

type workspaceCapabilities struct {
	WorkspaceFolders bool `json:"workspaceFolders,omitempty"`
}

type textDocumentCapabilities struct {
	Synchronization    *syncCapabilities               `json:"synchronization,omitempty"`
	Hover              *hoverCapabilities              `json:"hover,omitempty"`
	Definition         *definitionCapabilities         `json:"definition,omitempty"`
	References         *referencesCapabilities         `json:"references,omitempty"`
	DocumentSymbol     *documentSymbolCapabilities     `json:"documentSymbol,omitempty"`
	PublishDiagnostics *publishDiagnosticsCapabilities `json:"publishDiagnostics,omitempty"`
}

type syncCapabilities struct{}

type hoverCapabilities struct {
	ContentFormat []string `json:"contentFormat,omitempty"`
}

type definitionCapabilities struct {
	LinkSupport bool `json:"linkSupport,omitempty"`
}

type referencesCapabilities struct{}

type documentSymbolCapabilities struct {
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

type publishDiagnosticsCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
	VersionSupport     bool `json:"versionSupport,omitempty"`
}

type textDocumentIdentifier struct {
	Uri string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	Uri     string `json:"uri"`
	Version int32  `json:"version"`
}

type position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

type textDocumentPositionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     position               `json:"position"`
}

type textDocumentItem struct {
	Uri        string `json:"uri"`
	LanguageId string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type contentChange struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange                 `json:"contentChanges"`
}

type referenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type referenceParams struct {
	textDocumentPositionParams
	Context referenceContext `json:"context"`
}

type documentSymbolParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeLocations collapses the three definition/references result shapes
// (Location, []Location, []LocationLink) into a flat Location list. For links
// the selection range is used: it points at the symbol name rather than the
// whole declaration.
func decodeLocations(raw json.RawMessage) ([]protocol.Location, error) {
	if isNullResult(raw) {
		return nil, nil
	}

	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '{' {
		var loc protocol.Location
		if err := json.Unmarshal(trimmed, &loc); err != nil {
			return nil, NewError(KindProtocolError, "malformed location result", err)
		}
		return []protocol.Location{loc}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, NewError(KindProtocolError, "malformed location result", err)
	}
	if len(elements) == 0 {
		return nil, nil
	}

	var probe struct {
		TargetUri *string `json:"targetUri"`
	}
	if err := json.Unmarshal(elements[0], &probe); err != nil {
		return nil, NewError(KindProtocolError, "malformed location result", err)
	}

	if probe.TargetUri == nil {
		var locs []protocol.Location
		if err := json.Unmarshal(trimmed, &locs); err != nil {
			return nil, NewError(KindProtocolError, "malformed location result", err)
		}
		return locs, nil
	}

	var links []protocol.LocationLink
	if err := json.Unmarshal(trimmed, &links); err != nil {
		return nil, NewError(KindProtocolError, "malformed location link result", err)
	}
	locs := make([]protocol.Location, len(links))
	for i, link := range links {
		locs[i] = protocol.Location{
			Uri:   link.TargetUri,
			Range: link.TargetSelectionRange,
		}
	}
	return locs, nil
}

// decodeSymbols handles both documentSymbol result shapes: hierarchical
// DocumentSymbol trees are flattened depth-first with the parent name as
// container, flat SymbolInformation lists map one to one.
func decodeSymbols(raw json.RawMessage) ([]Symbol, error) {
	if isNullResult(raw) {
		return nil, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, NewError(KindProtocolError, "malformed symbol result", err)
	}
	if len(elements) == 0 {
		return nil, nil
	}

	var probe struct {
		SelectionRange *protocol.Range `json:"selectionRange"`
	}
	if err := json.Unmarshal(elements[0], &probe); err != nil {
		return nil, NewError(KindProtocolError, "malformed symbol result", err)
	}

	if probe.SelectionRange == nil {
		var infos []protocol.SymbolInformation
		if err := json.Unmarshal(raw, &infos); err != nil {
			return nil, NewError(KindProtocolError, "malformed symbol result", err)
		}
		out := make([]Symbol, len(infos))
		for i, info := range infos {
			out[i] = Symbol{
				Name:           info.Name,
				Kind:           info.Kind,
				ContainerName:  info.ContainerName,
				Range:          info.Location.Range,
				SelectionRange: info.Location.Range,
			}
		}
		return out, nil
	}

	var tree []protocol.DocumentSymbol
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, NewError(KindProtocolError, "malformed symbol result", err)
	}

	var out []Symbol
	var flatten func(syms []protocol.DocumentSymbol, container string, depth int)
	flatten = func(syms []protocol.DocumentSymbol, container string, depth int) {
		for _, s := range syms {
			out = append(out, Symbol{
				Name:           s.Name,
				Kind:           s.Kind,
				ContainerName:  container,
				Range:          s.Range,
				SelectionRange: s.SelectionRange,
				Depth:          depth,
			})
			if len(s.Children) > 0 {
				flatten(s.Children, s.Name, depth+1)
			}
		}
	}
	flatten(tree, "", 0)

	return out, nil
}
