package common

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// IsTimeoutError reports whether err stems from a network or context
// deadline, including timeouts surfaced through *url.Error by net/http.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout exceeded")
}
