package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/yolkispalkis/pacselect/pkg/pac"
)

// PacSelector asks a PAC script which proxies to use. Every failure (fetch,
// compile, runtime, timeout, unusable result) is logged and answered with
// DIRECT.
type PacSelector struct {
	loader *pac.Loader
}

// NewPacSelector binds the selector to loader.
func NewPacSelector(loader *pac.Loader) (*PacSelector, error) {
	if loader == nil {
		return nil, errors.New("PAC loader cannot be nil")
	}
	return &PacSelector{loader: loader}, nil
}

// Loader returns the script loader behind the selector.
func (s *PacSelector) Loader() *pac.Loader { return s.loader }

func (s *PacSelector) Select(ctx context.Context, u *url.URL) ProxyList {
	if u == nil || u.Hostname() == "" {
		slog.Debug("PAC selection skipped for URL without host, using DIRECT")
		return DirectList()
	}
	source := s.loader.Source().String()
	target := SanitizeURL(u).String()

	script, err := s.loader.Resolve(ctx)
	if err != nil {
		slog.Warn("PAC script unavailable, using DIRECT", "source", source, "url", target, "error", err)
		return DirectList()
	}

	raw, err := script.FindProxyForURL(ctx, u.String(), u.Hostname())
	if err != nil {
		slog.Warn("PAC evaluation failed, using DIRECT", "source", source, "url", target, "error", err)
		return DirectList()
	}

	list, err := ParsePacResult(raw)
	if err != nil {
		slog.Warn("PAC result unusable, using DIRECT", "source", source, "url", target, "result", raw, "error", err)
		return DirectList()
	}
	slog.Debug("PAC result parsed", "url", target, "result", raw, "proxies", list.String())
	return list
}
