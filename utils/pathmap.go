package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathMapper translates file paths between the machine the MCP client runs on
// and the environment the language servers see. When the bridge runs inside a
// container with the workspace mounted, tool calls carry host paths while the
// servers only understand mount paths; every inbound path and every outbound
// location goes through this mapping. A disabled mapper passes paths through
// untouched.
type PathMapper struct {
	hostRoot  string
	localRoot string
	enabled   bool
}

// NewPathMapper builds an enabled mapper. hostRoot may be a Windows path;
// localRoot must be absolute.
func NewPathMapper(hostRoot, localRoot string) (*PathMapper, error) {
	if hostRoot == "" {
		return nil, errors.New("host root cannot be empty")
	}
	if !strings.HasPrefix(localRoot, "/") {
		return nil, errors.New("local root must be an absolute path")
	}

	// Clean leaves backslashes alone on non-Windows hosts, so normalize them
	// first; ToLocal does the same to every inbound path.
	return &PathMapper{
		hostRoot:  strings.TrimSuffix(filepath.ToSlash(filepath.Clean(strings.ReplaceAll(hostRoot, "\\", "/"))), "/"),
		localRoot: strings.TrimSuffix(localRoot, "/"),
		enabled:   true,
	}, nil
}

// NewPathMapperFromEnv reads LSP_BRIDGE_HOST_ROOT and LSP_BRIDGE_LOCAL_ROOT.
// When the host root is unset the mapper is disabled, which is the common
// non-container case.
func NewPathMapperFromEnv() *PathMapper {
	hostRoot := os.Getenv("LSP_BRIDGE_HOST_ROOT")
	localRoot := os.Getenv("LSP_BRIDGE_LOCAL_ROOT")
	if localRoot == "" {
		localRoot = "/workspace"
	}

	if hostRoot == "" {
		return &PathMapper{localRoot: localRoot}
	}

	m, err := NewPathMapper(hostRoot, localRoot)
	if err != nil {
		return &PathMapper{localRoot: localRoot}
	}
	return m
}

func (m *PathMapper) Enabled() bool { return m.enabled }

// ToLocal maps a host path to the path the language servers see.
func (m *PathMapper) ToLocal(hostPath string) (string, error) {
	if !m.enabled {
		return hostPath, nil
	}
	if hostPath == "" {
		return "", errors.New("host path cannot be empty")
	}

	clean := filepath.ToSlash(filepath.Clean(strings.ReplaceAll(hostPath, "\\", "/")))
	if clean != m.hostRoot && !strings.HasPrefix(clean, m.hostRoot+"/") {
		return "", fmt.Errorf("path %s is outside mapped root %s", clean, m.hostRoot)
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(clean, m.hostRoot), "/")
	if rel == "" {
		return m.localRoot, nil
	}
	return m.localRoot + "/" + rel, nil
}

// ToHost maps a server-side path back to the caller's path.
func (m *PathMapper) ToHost(localPath string) (string, error) {
	if !m.enabled {
		return localPath, nil
	}
	if localPath == "" {
		return "", errors.New("local path cannot be empty")
	}

	clean := filepath.ToSlash(filepath.Clean(localPath))
	if clean != m.localRoot && !strings.HasPrefix(clean, m.localRoot+"/") {
		return "", fmt.Errorf("path %s is outside mapped root %s", clean, m.localRoot)
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(clean, m.localRoot), "/")
	if rel == "" {
		return m.hostRoot, nil
	}
	return m.hostRoot + "/" + rel, nil
}

// URIToHost rewrites a server-side file:// URI into the caller's path form.
// Non-file URIs and paths outside the mapped root pass through unchanged so a
// surprising location never breaks a whole result set.
func (m *PathMapper) URIToHost(uri string) string {
	if !m.enabled || !strings.HasPrefix(uri, "file://") {
		return uri
	}
	host, err := m.ToHost(URIToPath(uri))
	if err != nil {
		return uri
	}
	return host
}
