package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/yolkispalkis/pacselect/pkg/config"
	"github.com/yolkispalkis/pacselect/pkg/pac"
)

// Manager turns a proxy configuration into a ready Selector chain.
type Manager struct {
	config   config.ProxyConfig
	selector Selector

	engine *pac.Engine
	source *pac.URLSource
	loader *pac.Loader

	closeOnce sync.Once
}

// NewManager validates cfg and builds its selector chain. A configuration
// that cannot work at all (bad PAC location, empty fixed setting) fails
// here; PAC fetch and compile problems surface later as DIRECT answers.
func NewManager(cfg *config.ProxyConfig) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("proxy configuration cannot be nil")
	}
	m := &Manager{config: *cfg}
	proxyType := strings.ToLower(strings.TrimSpace(cfg.Type))
	bypass := ParseBypassList(cfg.Bypass)

	slog.Info("Initializing proxy manager",
		"type", proxyType,
		"pac_url", cfg.PacURL,
		"bypass_entries", len(bypass),
		"safe", cfg.Safe,
	)

	switch proxyType {
	case config.TypeNone, "":
		m.selector = DirectSelector

	case config.TypeFixed:
		fixed := ParseFixedProxyConfig(cfg.Fixed)
		if len(fixed) == 0 {
			return nil, fmt.Errorf("fixed proxy setting %q has no usable entries", cfg.Fixed)
		}
		m.selector = NewDispatchSelector(fixed, bypass)

	case config.TypePAC:
		source, err := pac.NewURLSource(cfg.PacURL, pac.URLSourceOptions{
			FetchTimeout:    cfg.FetchTimeoutDuration(),
			RefreshInterval: cfg.RefreshIntervalDuration(),
			Charset:         cfg.PacCharset,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid PAC location: %w", err)
		}
		opts := pac.Options{
			ExecTimeout: cfg.ExecTimeoutDuration(),
			DNSTimeout:  cfg.DNSTimeoutDuration(),
		}
		if override := strings.TrimSpace(cfg.OverrideLocalIP); override != "" {
			opts.LocalIPOverride = func() string { return override }
		}
		engine := pac.NewEngine(opts)
		loader, err := pac.NewLoader(source, engine)
		if err != nil {
			return nil, err
		}
		pacSelector, err := NewPacSelector(loader)
		if err != nil {
			return nil, err
		}

		var sel Selector = pacSelector
		if len(bypass) > 0 {
			sel = NewBypassSelector(bypass, sel)
		}
		if cfg.Safe {
			sel = NewSafeSelector(sel)
		}
		m.selector, m.engine, m.source, m.loader = sel, engine, source, loader

	case config.TypeEnv:
		var sel Selector = NewEnvSelector()
		if len(bypass) > 0 {
			sel = NewBypassSelector(bypass, sel)
		}
		m.selector = sel

	default:
		return nil, fmt.Errorf("unknown proxy type: %s", cfg.Type)
	}

	return m, nil
}

// Select returns the proxies to try for u.
func (m *Manager) Select(ctx context.Context, u *url.URL) ProxyList {
	return m.selector.Select(ctx, u)
}

// Selector exposes the configured chain.
func (m *Manager) Selector() Selector { return m.selector }

// LastError reports the most recent PAC load failure, if the manager runs a
// PAC script.
func (m *Manager) LastError() error {
	if m.loader == nil {
		return nil
	}
	return m.loader.LastError()
}

// Close releases the PAC engine caches and idle connections of the PAC
// download client.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		if m.engine != nil {
			m.engine.Close()
		}
		if m.source != nil {
			if err := m.source.Close(); err != nil {
				slog.Warn("Error closing PAC source", "error", err)
			}
		}
		slog.Info("Proxy manager closed.")
	})
	return nil
}
