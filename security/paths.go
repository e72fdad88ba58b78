// Package security confines every file the bridge reads to a set of allowed
// directories. Tool calls carry arbitrary paths from the MCP client, and the
// bridge reads those files to feed didOpen, so the check sits on every read
// path.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateConfigPath resolves path and verifies it falls inside one of the
// allowed directories. Returns the absolute, cleaned path.
func ValidateConfigPath(path string, allowedDirectories []string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("invalid path %s: %w", path, err)
	}

	for _, dir := range allowedDirectories {
		if dir == "" {
			continue
		}
		if IsWithinAllowedDirectory(absPath, dir) {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("path %s is outside allowed directories", absPath)
}

// IsWithinAllowedDirectory reports whether absPath is base or inside base.
// Both are compared as cleaned absolute paths; a shared prefix that is not a
// whole path component does not count ("/foo-bar" is not within "/foo").
func IsWithinAllowedDirectory(absPath, base string) bool {
	cleanBase, err := filepath.Abs(filepath.Clean(base))
	if err != nil {
		return false
	}

	if absPath == cleanBase {
		return true
	}

	return strings.HasPrefix(absPath, cleanBase+string(filepath.Separator))
}

// GetConfigAllowedDirectories returns the directories a configuration file
// may be loaded from.
func GetConfigAllowedDirectories(configDir, cwd string) []string {
	dirs := []string{}
	if configDir != "" {
		dirs = append(dirs, configDir)
	}
	if cwd != "" {
		dirs = append(dirs, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	return dirs
}
