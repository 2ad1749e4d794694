package proxy

import (
	"context"
	"net/url"
	"strings"
)

// SafeSelector hides the sensitive parts of a URL from the selector it
// wraps, which is normally a PAC script.
type SafeSelector struct {
	next Selector
}

// NewSafeSelector wraps next.
func NewSafeSelector(next Selector) *SafeSelector {
	return &SafeSelector{next: next}
}

func (s *SafeSelector) Select(ctx context.Context, u *url.URL) ProxyList {
	return s.next.Select(ctx, SanitizeURL(u))
}

// SanitizeURL returns a copy of u that is safe to hand to untrusted code.
// For https and wss only scheme, host and port survive and the path becomes
// "/". Other schemes keep path and query. User info and fragment are always
// dropped.
func SanitizeURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	if strings.EqualFold(u.Scheme, "https") || strings.EqualFold(u.Scheme, "wss") {
		return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	}
	return &url.URL{
		Scheme:     u.Scheme,
		Opaque:     u.Opaque,
		Host:       u.Host,
		Path:       u.Path,
		RawPath:    u.RawPath,
		RawQuery:   u.RawQuery,
		ForceQuery: u.ForceQuery,
	}
}
