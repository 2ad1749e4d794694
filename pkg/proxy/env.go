package proxy

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpproxy"
)

// EnvSelector follows HTTP_PROXY, HTTPS_PROXY and NO_PROXY the way
// net/http does. Schemes other than http and https go DIRECT.
type EnvSelector struct {
	proxyFunc func(*url.URL) (*url.URL, error)
}

// NewEnvSelector reads the environment once.
func NewEnvSelector() *EnvSelector {
	return NewEnvSelectorFromConfig(httpproxy.FromEnvironment())
}

// NewEnvSelectorFromConfig uses an explicit environment-style config.
func NewEnvSelectorFromConfig(cfg *httpproxy.Config) *EnvSelector {
	return &EnvSelector{proxyFunc: cfg.ProxyFunc()}
}

func (s *EnvSelector) Select(_ context.Context, u *url.URL) ProxyList {
	if u == nil {
		return DirectList()
	}
	target := u
	if alias, ok := schemeAliases[strings.ToLower(u.Scheme)]; ok {
		clone := *u
		clone.Scheme = alias
		target = &clone
	}

	proxyURL, err := s.proxyFunc(target)
	if err != nil {
		slog.Warn("Invalid proxy in environment, using DIRECT", "url", SanitizeURL(u).String(), "error", err)
		return DirectList()
	}
	if proxyURL == nil {
		return DirectList()
	}
	d, ok := descriptorFromURL(proxyURL)
	if !ok {
		slog.Warn("Unsupported proxy URL in environment, using DIRECT", "proxy", proxyURL.Redacted())
		return DirectList()
	}
	return ProxyList{d}
}

// descriptorFromURL converts a proxy URL such as "http://p:3128" or
// "socks5://p" into a descriptor.
func descriptorFromURL(u *url.URL) (ProxyDescriptor, bool) {
	var kind Kind
	port := 0
	switch strings.ToLower(u.Scheme) {
	case "http", "":
		kind, port = KindHTTP, defaultHTTPProxyPort
	case "https":
		kind, port = KindHTTPS, 443
	case "socks", "socks4", "socks5", "socks5h":
		kind, port = KindSOCKS, defaultSOCKSProxyPort
	default:
		return ProxyDescriptor{}, false
	}

	host := u.Hostname()
	if host == "" {
		return ProxyDescriptor{}, false
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ProxyDescriptor{}, false
		}
		port = n
	}
	return ProxyDescriptor{Kind: kind, Host: host, Port: port}, true
}
