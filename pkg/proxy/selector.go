package proxy

import (
	"context"
	"net/url"
)

// Selector picks the proxies to try for a URL. Implementations never fail:
// anything that goes wrong degrades to DIRECT.
type Selector interface {
	Select(ctx context.Context, u *url.URL) ProxyList
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, u *url.URL) ProxyList

func (f SelectorFunc) Select(ctx context.Context, u *url.URL) ProxyList { return f(ctx, u) }

// DirectSelector always answers DIRECT.
var DirectSelector Selector = SelectorFunc(func(context.Context, *url.URL) ProxyList {
	return DirectList()
})

// FixedSelector always answers the same list.
type FixedSelector struct {
	list ProxyList
}

// NewFixedSelector returns a selector for list. An empty list means DIRECT.
func NewFixedSelector(list ...ProxyDescriptor) *FixedSelector {
	if len(list) == 0 {
		list = DirectList()
	}
	return &FixedSelector{list: list}
}

func (s *FixedSelector) Select(context.Context, *url.URL) ProxyList {
	out := make(ProxyList, len(s.list))
	copy(out, s.list)
	return out
}

// BypassSelector answers DIRECT for URLs matching its bypass list and asks
// next for everything else.
type BypassSelector struct {
	bypass BypassList
	next   Selector
}

// NewBypassSelector wraps next with list.
func NewBypassSelector(list BypassList, next Selector) *BypassSelector {
	return &BypassSelector{bypass: list, next: next}
}

func (s *BypassSelector) Select(ctx context.Context, u *url.URL) ProxyList {
	if s.bypass.Matches(u) {
		return DirectList()
	}
	return s.next.Select(ctx, u)
}
