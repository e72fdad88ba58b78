package lsp

import (
	"os"
	"path/filepath"
	"strings"
)

// languageIdForPath infers the didOpen language id from a file extension.
// Servers mostly key behavior off this, so unknown extensions fall back to
// plaintext rather than guessing. Plain strings: the id goes straight onto
// the wire.
func languageIdForPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "go":
		return "go"
	case "py", "pyi":
		return "python"
	case "rs":
		return "rust"
	case "ts":
		return "typescript"
	case "tsx":
		return "typescriptreact"
	case "js", "mjs", "cjs":
		return "javascript"
	case "jsx":
		return "javascriptreact"
	case "java":
		return "java"
	case "c", "h":
		return "c"
	case "cpp", "cc", "cxx", "hpp":
		return "cpp"
	case "cs":
		return "csharp"
	case "php":
		return "php"
	case "rb":
		return "ruby"
	case "swift":
		return "swift"
	case "kt", "kts":
		return "kotlin"
	case "lua":
		return "lua"
	case "zig":
		return "zig"
	case "md":
		return "markdown"
	case "html":
		return "html"
	case "css":
		return "css"
	case "json":
		return "json"
	case "xml":
		return "xml"
	case "yaml", "yml":
		return "yaml"
	default:
		return "plaintext"
	}
}

// detectProjectRoot walks up from the file looking for a workspace marker.
// Per-server root_patterns take precedence over the builtin marker list.
// Falls back to the file's directory when nothing matches.
func detectProjectRoot(path string, rootPatterns []string) string {
	markers := rootPatterns
	if len(markers) == 0 {
		markers = []string{
			".git",
			"go.mod",
			"package.json",
			"Cargo.toml",
			"pyproject.toml",
			"compile_commands.json",
		}
	}

	dir := filepath.Dir(path)
	for current := dir; ; {
		for _, marker := range markers {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return dir
		}
		current = parent
	}
}
