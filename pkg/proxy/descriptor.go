package proxy

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	xproxy "golang.org/x/net/proxy"
)

// Kind is the connection type of a proxy entry.
type Kind int

const (
	KindDirect Kind = iota
	KindHTTP
	KindHTTPS
	KindSOCKS
)

// String returns the PAC keyword for k.
func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "DIRECT"
	case KindHTTP:
		return "PROXY"
	case KindHTTPS:
		return "HTTPS"
	case KindSOCKS:
		return "SOCKS"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// ErrNoDialer is returned by Dialer for proxy kinds x/net/proxy cannot dial through.
var ErrNoDialer = errors.New("proxy: no dialer for proxy kind")

// ProxyDescriptor is one proxy decision. DIRECT carries no host or port.
// IPv6 hosts keep their brackets ("[::1]").
type ProxyDescriptor struct {
	Kind Kind
	Host string
	Port int
}

// Direct is the "no proxy" descriptor.
var Direct = ProxyDescriptor{Kind: KindDirect}

// IsDirect reports whether d means connecting without a proxy.
func (d ProxyDescriptor) IsDirect() bool { return d.Kind == KindDirect }

// Address returns host:port, or "" for DIRECT.
func (d ProxyDescriptor) Address() string {
	if d.IsDirect() {
		return ""
	}
	return d.Host + ":" + strconv.Itoa(d.Port)
}

// String renders d the way a PAC script would return it.
func (d ProxyDescriptor) String() string {
	if d.IsDirect() {
		return d.Kind.String()
	}
	return d.Kind.String() + " " + d.Address()
}

// URL renders d as a proxy URL suitable for http.Transport.Proxy. DIRECT
// has no URL.
func (d ProxyDescriptor) URL() *url.URL {
	var scheme string
	switch d.Kind {
	case KindHTTP:
		scheme = "http"
	case KindHTTPS:
		scheme = "https"
	case KindSOCKS:
		scheme = "socks5"
	default:
		return nil
	}
	return &url.URL{Scheme: scheme, Host: d.Address()}
}

// Dialer returns a dialer that connects through d. DIRECT returns forward
// itself (or a plain dialer when forward is nil).
func (d ProxyDescriptor) Dialer(forward xproxy.Dialer) (xproxy.Dialer, error) {
	if forward == nil {
		forward = xproxy.Direct
	}
	switch d.Kind {
	case KindDirect:
		return forward, nil
	case KindSOCKS:
		dialer, err := xproxy.SOCKS5("tcp", d.Address(), nil, forward)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", d.Address(), err)
		}
		return dialer, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoDialer, d)
	}
}

// ProxyList is an ordered set of proxies to try, highest priority first.
type ProxyList []ProxyDescriptor

// DirectList returns a fresh [DIRECT] list.
func DirectList() ProxyList { return ProxyList{Direct} }

// IsDirect reports whether the first choice is DIRECT. An empty list counts
// as DIRECT.
func (l ProxyList) IsDirect() bool {
	return len(l) == 0 || l[0].IsDirect()
}

func (l ProxyList) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}
