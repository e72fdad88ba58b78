// Copyright 2025 Stryk91
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/Stryk91/lsp-mcp-bridge/bridge"
	"github.com/Stryk91/lsp-mcp-bridge/directories"
	"github.com/Stryk91/lsp-mcp-bridge/logger"
	"github.com/Stryk91/lsp-mcp-bridge/lsp"
	"github.com/Stryk91/lsp-mcp-bridge/mcpserver"
	"github.com/Stryk91/lsp-mcp-bridge/security"
	"github.com/Stryk91/lsp-mcp-bridge/utils"
)

// tryLoadConfig attempts the primary path first, then the usual fallback
// locations, each validated against the allowed directories.
func tryLoadConfig(primaryPath, configDir string) (*lsp.BridgeConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	allowedDirs := security.GetConfigAllowedDirectories(configDir, cwd)

	if config, err := lsp.LoadConfig(primaryPath, allowedDirs); err == nil {
		return config, nil
	}

	fallbackPaths := []string{
		"lsp_config.toml",
		"lsp_config.json",
		filepath.Join(configDir, "config.toml"),
		filepath.Join(configDir, "config.json"),
	}

	for _, fallbackPath := range fallbackPaths {
		if fallbackPath == primaryPath {
			continue
		}
		if config, err := lsp.LoadConfig(fallbackPath, allowedDirs); err == nil {
			fmt.Fprintf(os.Stderr, "INFO: Loaded configuration from fallback location: %s\n", fallbackPath)
			return config, nil
		}
	}

	return nil, errors.New("no valid configuration found")
}

// validateCommandLineArgs rejects flag values that point outside the
// directories the bridge is allowed to touch.
func validateCommandLineArgs(confPath, logPath, configDir, logDir string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	if confPath != "" {
		configAllowedDirs := security.GetConfigAllowedDirectories(configDir, cwd)
		if _, err := security.ValidateConfigPath(confPath, configAllowedDirs); err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
	}

	if logPath != "" {
		logAllowedDirs := []string{logDir, cwd, "."}
		if _, err := security.ValidateConfigPath(logPath, logAllowedDirs); err != nil {
			return fmt.Errorf("invalid log path: %w", err)
		}
	}

	return nil
}

func main() {
	dirResolver := directories.NewDirectoryResolver("lsp-mcp-bridge", directories.DefaultUserProvider{}, directories.DefaultEnvProvider{}, true)

	configDir, err := dirResolver.GetConfigDirectory()
	if err != nil {
		log.Fatalf("Failed to get config directory: %v", err)
	}

	logDir, err := dirResolver.GetLogDirectory()
	if err != nil {
		log.Fatalf("Failed to get log directory: %v", err)
	}

	defaultConfigPath := filepath.Join(configDir, "config.toml")
	defaultLogPath := filepath.Join(logDir, "lsp-mcp-bridge.log")

	var confPath string

	var logPath string

	var logLevel string

	flag.StringVar(&confPath, "config", defaultConfigPath, "Path to bridge configuration file (TOML or JSON)")
	flag.StringVar(&confPath, "c", defaultConfigPath, "Path to bridge configuration file (short)")
	flag.StringVar(&logPath, "log-path", "", "Path to log file (overrides config and default)")
	flag.StringVar(&logPath, "l", "", "Path to log file (short)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	if err := validateCommandLineArgs(confPath, logPath, configDir, logDir); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid command line arguments: %v\n", err)
		os.Exit(1)
	}

	config, err := tryLoadConfig(confPath, configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to load config from %q: %v\n", confPath, err)
		fmt.Fprintln(os.Stderr, "NOTICE: Using minimal default configuration. Every tool call will report NotConfigured until a config is provided.")

		config = lsp.DefaultConfig()
	}

	// Runtime tuning from outside (e.g. MCP client env blocks) without
	// editing config files inside a container.
	lsp.ApplyEnvOverrides(config)

	logConfig := logger.LoggerConfig{
		LogPath:     config.Global.LogPath,
		LogLevel:    config.Global.LogLevel,
		MaxLogFiles: config.Global.MaxLogFiles,
	}
	if logPath != "" {
		logConfig.LogPath = logPath
	}
	if logLevel != "" {
		logConfig.LogLevel = logLevel
	}
	if logConfig.LogPath == "" {
		logConfig.LogPath = defaultLogPath
	}

	if err := logger.InitLogger(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("Starting LSP-MCP bridge...")

	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("Failed to get current working directory:", err)
		os.Exit(1)
	}

	// In container mode workspace operations are anchored to the mounted
	// workspace root, not the process CWD.
	allowedDirs := []string{cwd}
	if workspaceRoot := os.Getenv("WORKSPACE_ROOT"); workspaceRoot != "" {
		allowedDirs = []string{workspaceRoot}
	}

	pathMapper := utils.NewPathMapperFromEnv()
	if pathMapper.Enabled() {
		logger.Info("Path mapping enabled")
	}

	bridgeInstance := bridge.NewMCPLSPBridge(config, allowedDirs, pathMapper)

	mcpServer := mcpserver.SetupMCPServer(bridgeInstance)
	bridgeInstance.SetServer(mcpServer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received", sig.String(), "- shutting down")
		bridgeInstance.CloseAllSessions()
		logger.Close()
		os.Exit(0)
	}()

	logger.Info("Starting MCP server on stdio...")

	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error("MCP server error:", err)
	}

	bridgeInstance.CloseAllSessions()
}
