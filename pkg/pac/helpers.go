package pac

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/gobwas/glob"
	"github.com/robertkrimen/otto"
)

// registerPacHelpers binds the PAC host functions into vm's global scope.
func (e *Engine) registerPacHelpers(vm *otto.Otto) error {
	helpers := map[string]func(otto.FunctionCall) otto.Value{
		"isPlainHostName": func(call otto.FunctionCall) otto.Value {
			return toValue(call, IsPlainHostName(stringArg(call, 0)))
		},
		"dnsDomainIs": func(call otto.FunctionCall) otto.Value {
			return toValue(call, DNSDomainIs(stringArg(call, 0), stringArg(call, 1)))
		},
		"localHostOrDomainIs": func(call otto.FunctionCall) otto.Value {
			return toValue(call, LocalHostOrDomainIs(stringArg(call, 0), stringArg(call, 1)))
		},
		"isResolvable": func(call otto.FunctionCall) otto.Value {
			_, ok := e.resolve(stringArg(call, 0))
			return toValue(call, ok)
		},
		"dnsResolve": func(call otto.FunctionCall) otto.Value {
			ip, ok := e.resolve(stringArg(call, 0))
			if !ok {
				return otto.NullValue()
			}
			return toValue(call, ip)
		},
		"isInNet": func(call otto.FunctionCall) otto.Value {
			ip, ok := e.resolve(stringArg(call, 0))
			if !ok {
				return otto.FalseValue()
			}
			return toValue(call, ipIsInNet(ip, stringArg(call, 1), stringArg(call, 2)))
		},
		"myIpAddress": func(call otto.FunctionCall) otto.Value {
			return toValue(call, e.myIPAddress())
		},
		"dnsDomainLevels": func(call otto.FunctionCall) otto.Value {
			return toValue(call, DNSDomainLevels(stringArg(call, 0)))
		},
		"shExpMatch": func(call otto.FunctionCall) otto.Value {
			return toValue(call, ShExpMatch(stringArg(call, 0), stringArg(call, 1)))
		},
		"weekdayRange": func(call otto.FunctionCall) otto.Value {
			return toValue(call, weekdayRange(e.opts.Now(), stringArgs(call)))
		},
		"dateRange": func(call otto.FunctionCall) otto.Value {
			return toValue(call, dateRange(e.opts.Now(), stringArgs(call)))
		},
		"timeRange": func(call otto.FunctionCall) otto.Value {
			return toValue(call, timeRange(e.opts.Now(), stringArgs(call)))
		},
		"alert": pacAlert,

		// Microsoft IPv6 extensions. They never throw.
		"isResolvableEx": func(call otto.FunctionCall) otto.Value {
			_, ok := e.resolve(stringArg(call, 0))
			return toValue(call, ok)
		},
		"dnsResolveEx": func(call otto.FunctionCall) otto.Value {
			ip, ok := e.resolve(stringArg(call, 0))
			if !ok {
				return toValue(call, "")
			}
			return toValue(call, ip)
		},
		"myIpAddressEx": func(call otto.FunctionCall) otto.Value {
			return toValue(call, e.myIPAddress())
		},
		"isInNetEx": func(call otto.FunctionCall) otto.Value {
			ip, ok := e.resolve(stringArg(call, 0))
			if !ok {
				return otto.FalseValue()
			}
			_, ipNet, err := net.ParseCIDR(stringArg(call, 1))
			return toValue(call, err == nil && ipNet.Contains(net.ParseIP(ip)))
		},
		"sortIpAddressList": func(call otto.FunctionCall) otto.Value {
			return call.Argument(0)
		},
	}

	for name, fn := range helpers {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("failed to set PAC helper '%s': %w", name, err)
		}
	}
	return registerConsole(vm)
}

// registerConsole replaces otto's built-in console, which prints to the
// process's stdout and stderr, with one that logs through slog.
func registerConsole(vm *otto.Otto) error {
	console, err := vm.Object(`({})`)
	if err != nil {
		return fmt.Errorf("failed to create PAC console: %w", err)
	}
	for _, method := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		if err := console.Set(method, pacConsole); err != nil {
			return fmt.Errorf("failed to set console.%s: %w", method, err)
		}
	}
	if err := vm.Set("console", console); err != nil {
		return fmt.Errorf("failed to set PAC console: %w", err)
	}
	return nil
}

// --- otto adapters ---

func toValue(call otto.FunctionCall, v interface{}) otto.Value {
	value, err := call.Otto.ToValue(v)
	if err != nil {
		return otto.UndefinedValue()
	}
	return value
}

func stringArg(call otto.FunctionCall, i int) string {
	arg := call.Argument(i)
	if arg.IsUndefined() || arg.IsNull() {
		return ""
	}
	s, _ := arg.ToString()
	return s
}

func stringArgs(call otto.FunctionCall) []string {
	args := make([]string, 0, len(call.ArgumentList))
	for i := range call.ArgumentList {
		args = append(args, stringArg(call, i))
	}
	return args
}

func pacAlert(call otto.FunctionCall) otto.Value {
	slog.Info("[PAC Alert]", "message", stringArg(call, 0))
	return otto.UndefinedValue()
}

func pacConsole(call otto.FunctionCall) otto.Value {
	slog.Debug("[PAC Console]", "message", strings.Join(stringArgs(call), " "))
	return otto.UndefinedValue()
}

// --- Pure host functions ---

// IsPlainHostName reports whether host has no domain part.
func IsPlainHostName(host string) bool {
	return host != "" && !strings.Contains(host, ".") && net.ParseIP(host) == nil
}

// DNSDomainIs reports whether host is domain or lies inside it.
// A leading dot on domain is accepted.
func DNSDomainIs(host, domain string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(domain, "."), "."))
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// LocalHostOrDomainIs is true if host equals hostdom exactly, or if host is
// unqualified and matches the first label of hostdom.
func LocalHostOrDomainIs(host, hostdom string) bool {
	host = strings.ToLower(host)
	hostdom = strings.ToLower(hostdom)
	if host == "" {
		return false
	}
	if host == hostdom {
		return true
	}
	if strings.Contains(host, ".") {
		return false
	}
	label, _, _ := strings.Cut(hostdom, ".")
	return host == label
}

// DNSDomainLevels counts the dots in host.
func DNSDomainLevels(host string) int {
	return strings.Count(host, ".")
}

// ShExpMatch matches str against a shell expression where '*' matches any
// run of characters (including '/' and '.') and '?' exactly one. Every other
// character is literal.
func ShExpMatch(str, pattern string) bool {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?':
			b.WriteRune(r)
		default:
			b.WriteString(glob.QuoteMeta(string(r)))
		}
	}
	g, err := glob.Compile(b.String())
	if err != nil {
		slog.Warn("Error in PAC shExpMatch evaluation", "pattern", pattern, "error", err)
		return false
	}
	return g.Match(str)
}
