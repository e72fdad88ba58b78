package directories

import (
	"fmt"
	"os"
	"path/filepath"
)

// UserProvider abstracts home directory lookup so tests can pin it.
type UserProvider interface {
	HomeDir() (string, error)
}

// EnvProvider abstracts environment lookup so tests can pin it.
type EnvProvider interface {
	Getenv(key string) string
}

type DefaultUserProvider struct{}

func (DefaultUserProvider) HomeDir() (string, error) { return os.UserHomeDir() }

type DefaultEnvProvider struct{}

func (DefaultEnvProvider) Getenv(key string) string { return os.Getenv(key) }

// DirectoryResolver maps the application name onto XDG-style config and log
// directories, creating them on demand.
type DirectoryResolver struct {
	appName string
	user    UserProvider
	env     EnvProvider
	create  bool
}

func NewDirectoryResolver(appName string, user UserProvider, env EnvProvider, create bool) *DirectoryResolver {
	return &DirectoryResolver{appName: appName, user: user, env: env, create: create}
}

// GetConfigDirectory returns $XDG_CONFIG_HOME/<app> or ~/.config/<app>.
func (r *DirectoryResolver) GetConfigDirectory() (string, error) {
	base := r.env.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := r.user.HomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return r.ensure(filepath.Join(base, r.appName))
}

// GetLogDirectory returns $XDG_STATE_HOME/<app> or ~/.local/state/<app>.
func (r *DirectoryResolver) GetLogDirectory() (string, error) {
	base := r.env.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := r.user.HomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".local", "state")
	}
	return r.ensure(filepath.Join(base, r.appName))
}

func (r *DirectoryResolver) ensure(dir string) (string, error) {
	if r.create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	return dir, nil
}
