package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/net/http/httpproxy"
)

func TestEnvSelector(t *testing.T) {
	sel := NewEnvSelectorFromConfig(&httpproxy.Config{
		HTTPProxy:  "http-proxy.example:3128",
		HTTPSProxy: "socks5://socks.example",
		NoProxy:    "internal.example",
	})
	ctx := context.Background()

	assert.Equal(t, ProxyList{{Kind: KindHTTP, Host: "http-proxy.example", Port: 3128}}, sel.Select(ctx, mustURL(t, "http://www.example.org/")))
	assert.Equal(t, ProxyList{{Kind: KindSOCKS, Host: "socks.example", Port: 1080}}, sel.Select(ctx, mustURL(t, "https://www.example.org/")))
	assert.Equal(t, ProxyList{{Kind: KindSOCKS, Host: "socks.example", Port: 1080}}, sel.Select(ctx, mustURL(t, "wss://www.example.org/")))
	assert.Equal(t, DirectList(), sel.Select(ctx, mustURL(t, "http://internal.example/")))
	assert.Equal(t, DirectList(), sel.Select(ctx, mustURL(t, "ftp://www.example.org/")))
	assert.Equal(t, DirectList(), sel.Select(ctx, nil))
}

func TestEnvSelector_FromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://[2001:db8::1]:8080")
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("NO_PROXY", "")
	t.Setenv("https_proxy", "")
	t.Setenv("no_proxy", "")
	t.Setenv("REQUEST_METHOD", "")

	got := NewEnvSelector().Select(context.Background(), mustURL(t, "http://www.example.org/"))
	assert.Equal(t, ProxyList{{Kind: KindHTTP, Host: "[2001:db8::1]", Port: 8080}}, got)
}
