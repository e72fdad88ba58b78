package utils

import (
	"path/filepath"
	"strings"
)

// PathToURI converts an absolute or relative file path to a file:// URI.
// Relative paths are resolved against the current working directory.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)

	var b strings.Builder
	b.WriteString("file://")
	if !strings.HasPrefix(abs, "/") {
		// Windows drive path like C:/...
		b.WriteString("/")
	}
	for _, r := range abs {
		switch r {
		case ' ':
			b.WriteString("%20")
		case '#':
			b.WriteString("%23")
		case '?':
			b.WriteString("%3F")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// URIToPath strips the file:// scheme and undoes the escaping PathToURI
// applies. Non-file URIs are returned unchanged.
func URIToPath(uri string) string {
	s, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return uri
	}
	// file:///C:/... keeps the drive, file:///home/... keeps the slash
	if len(s) > 3 && s[0] == '/' && s[2] == ':' {
		s = s[1:]
	}
	s = strings.ReplaceAll(s, "%20", " ")
	s = strings.ReplaceAll(s, "%23", "#")
	s = strings.ReplaceAll(s, "%3F", "?")
	return s
}

// NormalizeURI accepts either a plain path or a file:// URI and returns a
// canonical file:// URI.
func NormalizeURI(pathOrURI string) string {
	if strings.HasPrefix(pathOrURI, "file://") {
		return pathOrURI
	}
	return PathToURI(pathOrURI)
}
