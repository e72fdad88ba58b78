package lsp

import (
	"sort"
	"strings"
	"time"

	"github.com/Stryk91/lsp-mcp-bridge/logger"
)

// ServerSpec is one language server as resolved from configuration.
// Immutable after registry construction. Specs with identical command and
// argument lists are deduplicated so their extensions share one session.
type ServerSpec struct {
	Name                  string
	Command               string
	Args                  []string
	Extensions            []string
	RootPatterns          []string
	Timeout               time.Duration
	InitializationOptions map[string]any
}

// Key identifies the spec for session sharing. Two config entries launching
// the same command with the same arguments resolve to the same key.
func (s *ServerSpec) Key() string {
	return s.Command + "\x00" + strings.Join(s.Args, "\x00")
}

// ServerRegistry is the immutable extension → spec lookup table, built once
// at startup and safe for concurrent reads.
type ServerRegistry struct {
	byExt map[string]*ServerSpec
	specs []*ServerSpec
}

// NewServerRegistry builds the lookup table from configuration. When two
// servers claim the same extension the one whose config name sorts first
// wins; the conflict is logged.
func NewServerRegistry(cfg *BridgeConfig) *ServerRegistry {
	r := &ServerRegistry{byExt: make(map[string]*ServerSpec)}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	byKey := make(map[string]*ServerSpec)

	for _, name := range names {
		sc := cfg.Servers[name]

		spec := &ServerSpec{
			Name:                  name,
			Command:               sc.Command,
			Args:                  append([]string(nil), sc.Args...),
			RootPatterns:          append([]string(nil), sc.RootPatterns...),
			InitializationOptions: sc.InitializationOptions,
		}
		if sc.TimeoutMs > 0 {
			spec.Timeout = time.Duration(sc.TimeoutMs) * time.Millisecond
		}

		if existing, ok := byKey[spec.Key()]; ok {
			// Same command+args under another name: share the session.
			logger.Debug("registry: merging server", name, "into", existing.Name)
			spec = existing
		} else {
			byKey[spec.Key()] = spec
			r.specs = append(r.specs, spec)
		}

		for _, ext := range sc.Extensions {
			ext = normalizeExtension(ext)
			if prev, ok := r.byExt[ext]; ok && prev != spec {
				logger.Warn("registry: extension", ext, "already mapped to", prev.Name, "- ignoring mapping to", name)
				continue
			}
			if !containsString(spec.Extensions, ext) {
				spec.Extensions = append(spec.Extensions, ext)
			}
			r.byExt[ext] = spec
		}
	}

	for _, spec := range r.specs {
		sort.Strings(spec.Extensions)
	}

	return r
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Resolve returns the spec for a file extension (with or without the leading
// dot, any case). Fails with NotConfigured when no entry matches.
func (r *ServerRegistry) Resolve(ext string) (*ServerSpec, error) {
	spec, ok := r.byExt[normalizeExtension(ext)]
	if !ok {
		return nil, Errorf(KindNotConfigured, "no language server configured for extension %q", ext)
	}
	return spec, nil
}

// ResolvePath resolves the spec for a file path by its extension.
func (r *ServerRegistry) ResolvePath(path string) (*ServerSpec, error) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 || idx == len(path)-1 {
		return nil, Errorf(KindNotConfigured, "file %q has no extension", path)
	}
	return r.Resolve(path[idx:])
}

// Specs returns the deduplicated specs in config-name order.
func (r *ServerRegistry) Specs() []*ServerSpec {
	out := make([]*ServerSpec, len(r.specs))
	copy(out, r.specs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
