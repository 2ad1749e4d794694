package proxy

import (
	"net/http"
	"net/url"
)

// ProxyFunc adapts sel to http.Transport.Proxy. The first entry of the
// selected list wins; DIRECT yields a nil URL.
func ProxyFunc(sel Selector) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		list := sel.Select(req.Context(), req.URL)
		if list.IsDirect() {
			return nil, nil
		}
		return list[0].URL(), nil
	}
}
