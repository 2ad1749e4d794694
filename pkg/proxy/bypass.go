package proxy

import (
	"log/slog"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/yolkispalkis/pacselect/pkg/pac"
)

// BypassLocal matches plain host names and loopback or private addresses.
const BypassLocal = "<local>"

type bypassKind int

const (
	bypassInvalid bypassKind = iota
	bypassLocal
	bypassHost   // exact host
	bypassSuffix // *.example.com, .example.com
	bypassGlob   // any other pattern with '*' or '?'
	bypassCIDR   // 10.0.0.0/8
)

// wellKnownPorts fills in the port of a URL that does not carry one.
var wellKnownPorts = map[string]int{
	"http":   80,
	"https":  443,
	"ftp":    21,
	"ws":     80,
	"wss":    443,
	"socks":  1080,
	"socks5": 1080,
}

// BypassEntry is one parsed bypass pattern. Port 0 matches any port.
type BypassEntry struct {
	raw    string
	kind   bypassKind
	host   string
	addr   netip.Addr // set when host is an IP literal
	prefix netip.Prefix
	port   int
}

// String returns the pattern as written.
func (e BypassEntry) String() string { return e.raw }

// BypassList is a set of bypass patterns; a host matching any of them is
// reached directly.
type BypassList []BypassEntry

// ParseBypassList parses patterns separated by ';', ',' or whitespace.
// Malformed patterns are kept but never match.
func ParseBypassList(raw string) BypassList {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || unicode.IsSpace(r)
	})
	list := make(BypassList, 0, len(fields))
	for _, f := range fields {
		e := parseBypassEntry(f)
		if e.kind == bypassInvalid {
			slog.Warn("Bypass pattern is malformed and will never match", "pattern", f)
		}
		list = append(list, e)
	}
	return list
}

func parseBypassEntry(pattern string) BypassEntry {
	e := BypassEntry{raw: pattern}
	p := strings.ToLower(strings.TrimSpace(pattern))

	if p == BypassLocal {
		e.kind = bypassLocal
		return e
	}
	if strings.Contains(p, "/") {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			return e
		}
		e.kind, e.prefix = bypassCIDR, prefix.Masked()
		return e
	}

	host, port, ok := splitBypassPort(p)
	if !ok || host == "" {
		return e
	}
	e.port = port

	switch {
	case strings.HasPrefix(host, "*.") && !strings.ContainsAny(host[2:], "*?"):
		e.kind, e.host = bypassSuffix, host[2:]
	case strings.HasPrefix(host, ".") && !strings.ContainsAny(host[1:], "*?"):
		e.kind, e.host = bypassSuffix, host[1:]
	case strings.ContainsAny(host, "*?"):
		e.kind, e.host = bypassGlob, host
	default:
		e.kind, e.host = bypassHost, strings.TrimSuffix(host, ".")
		if addr, err := netip.ParseAddr(host); err == nil {
			e.addr = addr.Unmap()
		}
	}
	if e.host == "" {
		e.kind = bypassInvalid
	}
	return e
}

// splitBypassPort separates an optional ":port". A bare IPv6 literal (more
// than one colon, no brackets) has no port.
func splitBypassPort(p string) (string, int, bool) {
	if strings.HasPrefix(p, "[") {
		end := strings.IndexByte(p, ']')
		if end < 0 {
			return "", 0, false
		}
		host, rest := p[1:end], p[end+1:]
		if rest == "" {
			return host, 0, true
		}
		if !strings.HasPrefix(rest, ":") {
			return "", 0, false
		}
		port, err := parsePort(rest[1:])
		return host, port, err == nil
	}
	if strings.Count(p, ":") != 1 {
		return p, 0, true
	}
	host, portStr, _ := strings.Cut(p, ":")
	if portStr == "*" {
		return host, 0, true
	}
	port, err := parsePort(portStr)
	return host, port, err == nil
}

// matches reports whether host (lower case, no brackets) and port hit e.
func (e BypassEntry) matches(host string, port int) bool {
	if e.port != 0 && e.port != port {
		return false
	}
	switch e.kind {
	case bypassLocal:
		return isLocalHost(host)
	case bypassHost:
		if e.addr.IsValid() {
			addr, err := netip.ParseAddr(host)
			return err == nil && addr.Unmap() == e.addr
		}
		return host == e.host
	case bypassSuffix:
		return pac.DNSDomainIs(host, e.host)
	case bypassGlob:
		return pac.ShExpMatch(host, e.host)
	case bypassCIDR:
		addr, err := netip.ParseAddr(host)
		return err == nil && e.prefix.Contains(addr.Unmap())
	default:
		return false
	}
}

// isLocalHost is true for names without a dot and for loopback, RFC 1918 and
// ULA addresses. Names are not resolved.
func isLocalHost(host string) bool {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		return addr.IsLoopback() || addr.IsPrivate()
	}
	return !strings.Contains(host, ".")
}

// Matches reports whether u should bypass proxying.
func (l BypassList) Matches(u *url.URL) bool {
	if u == nil || len(l) == 0 {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	port := urlPort(u)
	for _, e := range l {
		if e.matches(host, port) {
			return true
		}
	}
	return false
}

// ShouldBypass reports whether any entry of list matches u.
func ShouldBypass(u *url.URL, list BypassList) bool {
	return list.Matches(u)
}

// urlPort returns the explicit port of u or the scheme's well-known one.
func urlPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			return port
		}
	}
	return wellKnownPorts[strings.ToLower(u.Scheme)]
}
