package proxy

import (
	"context"
	"net/url"
	"strings"
)

// DispatchSelector routes a URL by scheme for manual (non-PAC) settings.
// Each scheme maps to a nested selector; SchemeDefault covers the rest. A
// bypass match short-circuits to DIRECT before any lookup.
type DispatchSelector struct {
	selectors map[string]Selector
	bypass    BypassList
}

// NewDispatchSelector builds a dispatcher answering each entry of config
// with its fixed proxy. bypass may be nil.
func NewDispatchSelector(config FixedProxyConfig, bypass BypassList) *DispatchSelector {
	s := &DispatchSelector{
		selectors: make(map[string]Selector, len(config)),
		bypass:    bypass,
	}
	for scheme, d := range config {
		s.selectors[scheme] = NewFixedSelector(d)
	}
	return s
}

// WithSelector routes scheme to sel instead of a fixed proxy. It must be
// called before the selector is shared.
func (s *DispatchSelector) WithSelector(scheme string, sel Selector) *DispatchSelector {
	s.selectors[strings.ToLower(scheme)] = sel
	return s
}

func (s *DispatchSelector) Select(ctx context.Context, u *url.URL) ProxyList {
	if u == nil {
		return DirectList()
	}
	if s.bypass.Matches(u) {
		return DirectList()
	}
	if sel := s.lookup(u.Scheme); sel != nil {
		return sel.Select(ctx, u)
	}
	return DirectList()
}

func (s *DispatchSelector) lookup(scheme string) Selector {
	scheme = strings.ToLower(scheme)
	if sel, ok := s.selectors[scheme]; ok {
		return sel
	}
	if alias, ok := schemeAliases[scheme]; ok {
		if sel, ok := s.selectors[alias]; ok {
			return sel
		}
	}
	return s.selectors[SchemeDefault]
}
