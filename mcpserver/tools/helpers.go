package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
)

// requirePosition extracts the file/line/column triple shared by the
// position-based tools. Coordinates are zero-based.
func requirePosition(request mcp.CallToolRequest) (string, uint32, uint32, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return "", 0, 0, err
	}

	line, err := request.RequireInt("line")
	if err != nil {
		return "", 0, 0, err
	}

	column, err := request.RequireInt("column")
	if err != nil {
		return "", 0, 0, err
	}

	if line < 0 || column < 0 {
		return "", 0, 0, fmt.Errorf("line and column must be zero or positive, got %d:%d", line, column)
	}

	return file, uint32(line), uint32(column), nil
}

// formatLocation renders one location as path:line:column with zero-based
// coordinates, matching what the position-based tools accept as input.
func formatLocation(loc protocol.Location) string {
	return fmt.Sprintf("%s:%d:%d",
		utils.URIToPath(string(loc.Uri)),
		loc.Range.Start.Line,
		loc.Range.Start.Character)
}

func formatLocations(locs []protocol.Location) string {
	lines := make([]string, len(locs))
	for i, loc := range locs {
		lines[i] = formatLocation(loc)
	}
	return strings.Join(lines, "\n")
}

var symbolKindNames = map[protocol.SymbolKind]string{
	protocol.SymbolKindFile:          "File",
	protocol.SymbolKindModule:        "Module",
	protocol.SymbolKindNamespace:     "Namespace",
	protocol.SymbolKindPackage:       "Package",
	protocol.SymbolKindClass:         "Class",
	protocol.SymbolKindMethod:        "Method",
	protocol.SymbolKindProperty:      "Property",
	protocol.SymbolKindField:         "Field",
	protocol.SymbolKindConstructor:   "Constructor",
	protocol.SymbolKindEnum:          "Enum",
	protocol.SymbolKindInterface:     "Interface",
	protocol.SymbolKindFunction:      "Function",
	protocol.SymbolKindVariable:      "Variable",
	protocol.SymbolKindConstant:      "Constant",
	protocol.SymbolKindString:        "String",
	protocol.SymbolKindNumber:        "Number",
	protocol.SymbolKindBoolean:       "Boolean",
	protocol.SymbolKindArray:         "Array",
	protocol.SymbolKindObject:        "Object",
	protocol.SymbolKindKey:           "Key",
	protocol.SymbolKindNull:          "Null",
	protocol.SymbolKindEnumMember:    "EnumMember",
	protocol.SymbolKindStruct:        "Struct",
	protocol.SymbolKindEvent:         "Event",
	protocol.SymbolKindOperator:      "Operator",
	protocol.SymbolKindTypeParameter: "TypeParameter",
}

func symbolKindName(kind protocol.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(kind))
}

// extractHoverContent flattens the hover Contents union into plain text.
// Code-only MarkedStrings come back fenced so language context survives.
func extractHoverContent(hover *protocol.Hover) string {
	switch v := hover.Contents.Value.(type) {
	case protocol.MarkupContent:
		return v.Value
	case protocol.MarkedString:
		return markedStringText(v)
	case []protocol.MarkedString:
		parts := make([]string, 0, len(v))
		for _, ms := range v {
			if text := markedStringText(ms); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n\n")
	default:
		logger.Warn(fmt.Sprintf("unhandled hover contents type: %T", v))
		return ""
	}
}

func markedStringText(ms protocol.MarkedString) string {
	switch v := ms.Value.(type) {
	case string:
		return v
	case protocol.MarkedStringWithLanguage:
		return fmt.Sprintf("```%s\n%s\n```", v.Language, v.Value)
	default:
		logger.Warn(fmt.Sprintf("unhandled marked string type: %T", v))
		return ""
	}
}
