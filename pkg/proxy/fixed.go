package proxy

import (
	"log/slog"
	"net"
	"strings"
)

// SchemeDefault keys the FixedProxyConfig entry used for schemes with no
// entry of their own.
const SchemeDefault = "default"

const (
	defaultHTTPProxyPort  = 80
	defaultSOCKSProxyPort = 1080
)

var fixedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
	"socks": true,
}

// schemeAliases lets websocket URLs reuse the HTTP entries.
var schemeAliases = map[string]string{
	"ws":  "http",
	"wss": "https",
}

// FixedProxyConfig maps a URL scheme (or SchemeDefault) to its proxy.
type FixedProxyConfig map[string]ProxyDescriptor

// ParseFixedProxyConfig parses a manual proxy setting such as
// "http=proxy1:80;https=proxy2:443" or a bare "proxy:8080" (which sets the
// default entry). Entries are separated by ';' or newlines. Unknown schemes
// and unparseable entries are logged and ignored.
func ParseFixedProxyConfig(raw string) FixedProxyConfig {
	cfg := make(FixedProxyConfig)
	entries := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '\n' || r == '\r'
	})

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		scheme := SchemeDefault
		value := entry
		if key, rest, found := strings.Cut(entry, "="); found {
			scheme = strings.ToLower(strings.TrimSpace(key))
			value = strings.TrimSpace(rest)
			if !fixedSchemes[scheme] && scheme != SchemeDefault {
				slog.Warn("Ignoring fixed proxy entry with unknown scheme", "scheme", scheme, "entry", entry)
				continue
			}
		}

		d, ok := parseFixedValue(scheme, value)
		if !ok {
			slog.Warn("Ignoring malformed fixed proxy entry", "entry", entry)
			continue
		}
		cfg[scheme] = d
	}

	// A lone SOCKS server handles everything the other schemes don't.
	if socks, ok := cfg["socks"]; ok {
		if _, hasDefault := cfg[SchemeDefault]; !hasDefault {
			cfg[SchemeDefault] = socks
		}
	}
	return cfg
}

// parseFixedValue accepts "host:port", "host" or "scheme://host[:port]".
func parseFixedValue(scheme, value string) (ProxyDescriptor, bool) {
	kind := KindHTTP
	if scheme == "socks" {
		kind = KindSOCKS
	}
	if prefix, rest, found := strings.Cut(value, "://"); found {
		if strings.HasPrefix(strings.ToLower(prefix), "socks") {
			kind = KindSOCKS
		}
		value = rest
	}
	value = strings.TrimSuffix(value, "/")
	if value == "" {
		return ProxyDescriptor{}, false
	}

	defaultPort := defaultHTTPProxyPort
	if kind == KindSOCKS {
		defaultPort = defaultSOCKSProxyPort
	}

	host, port, err := splitHostPort(value)
	if err != nil {
		// No port given: the whole value is the host.
		host, port = value, defaultPort
		if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil && ip.To4() == nil {
			host = "[" + strings.Trim(host, "[]") + "]"
		} else if strings.ContainsAny(host, ":[] \t") {
			return ProxyDescriptor{}, false
		}
	}
	return ProxyDescriptor{Kind: kind, Host: host, Port: port}, true
}

// Lookup returns the proxy for scheme: its own entry, the entry of the
// scheme it aliases, or the default entry.
func (c FixedProxyConfig) Lookup(scheme string) (ProxyDescriptor, bool) {
	scheme = strings.ToLower(scheme)
	if d, ok := c[scheme]; ok {
		return d, true
	}
	if alias, ok := schemeAliases[scheme]; ok {
		if d, ok := c[alias]; ok {
			return d, true
		}
	}
	d, ok := c[SchemeDefault]
	return d, ok
}
