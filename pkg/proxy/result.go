package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// ErrMalformedResult means no entry of a PAC result could be used.
var ErrMalformedResult = errors.New("proxy: malformed PAC result")

const pacResultSplit = ";"

var pacKinds = map[string]Kind{
	"PROXY":  KindHTTP,
	"HTTP":   KindHTTP,
	"HTTPS":  KindHTTPS,
	"SOCKS":  KindSOCKS,
	"SOCKS4": KindSOCKS,
	"SOCKS5": KindSOCKS,
}

// ParsePacResult converts the string returned by FindProxyForURL into an
// ordered ProxyList. Empty entries are skipped silently; malformed ones are
// skipped with a debug log. It fails with ErrMalformedResult only when no
// entry is usable.
func ParsePacResult(raw string) (ProxyList, error) {
	var (
		list    ProxyList
		skipped int
	)
	for _, part := range strings.Split(raw, pacResultSplit) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := parsePacEntry(part)
		if err != nil {
			skipped++
			slog.Debug("Skipping malformed PAC result entry", "entry", part, "error", err)
			continue
		}
		list = append(list, d)
	}

	if len(list) == 0 {
		if skipped == 0 {
			return nil, fmt.Errorf("%w: empty result", ErrMalformedResult)
		}
		return nil, fmt.Errorf("%w: %q", ErrMalformedResult, raw)
	}
	return list, nil
}

func parsePacEntry(entry string) (ProxyDescriptor, error) {
	keyword, arg := entry, ""
	if i := strings.IndexFunc(entry, unicode.IsSpace); i >= 0 {
		keyword, arg = entry[:i], strings.TrimSpace(entry[i:])
	}
	keyword = strings.ToUpper(keyword)

	if keyword == "DIRECT" {
		if arg != "" {
			return ProxyDescriptor{}, fmt.Errorf("unexpected argument %q after DIRECT", arg)
		}
		return Direct, nil
	}

	kind, ok := pacKinds[keyword]
	if !ok {
		return ProxyDescriptor{}, fmt.Errorf("unknown proxy type %q", keyword)
	}
	host, port, err := splitHostPort(arg)
	if err != nil {
		return ProxyDescriptor{}, err
	}
	return ProxyDescriptor{Kind: kind, Host: host, Port: port}, nil
}

// splitHostPort splits "host:port" at the last colon. Bracketed IPv6 hosts
// keep their brackets; an unbracketed host with colons is rejected.
func splitHostPort(hostport string) (string, int, error) {
	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		return "", 0, fmt.Errorf("missing port in %q", hostport)
	}
	host := strings.TrimSpace(hostport[:idx])
	portStr := strings.TrimSpace(hostport[idx+1:])

	if host == "" {
		return "", 0, fmt.Errorf("missing host in %q", hostport)
	}
	if strings.HasPrefix(host, "[") {
		if !strings.HasSuffix(host, "]") || len(host) < 3 {
			return "", 0, fmt.Errorf("unterminated IPv6 literal in %q", hostport)
		}
	} else if strings.ContainsAny(host, ":[] \t") {
		return "", 0, fmt.Errorf("invalid host in %q", hostport)
	}

	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", hostport, err)
	}
	return host, port, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
