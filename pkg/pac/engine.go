package pac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/robertkrimen/otto"
)

const (
	DefaultExecTimeout = 5 * time.Second
	DefaultDNSTimeout  = 2 * time.Second
	dnsCacheTTL        = 5 * time.Minute
	dnsCacheSize       = 1024
	myIPCacheTTL       = 10 * time.Minute // IP address changes less often

	// EnvOverrideLocalIP, when set, is returned by myIpAddress instead of the
	// address of a local interface.
	EnvOverrideLocalIP = "PACSELECT_OVERRIDE_LOCAL_IP"

	entryPoint = "FindProxyForURL"
)

// Resolver is the subset of *net.Resolver used by the DNS host functions.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Options tunes an Engine. Zero values select defaults.
type Options struct {
	// ExecTimeout bounds a single FindProxyForURL call and the initial
	// evaluation of the script body.
	ExecTimeout time.Duration
	// DNSTimeout bounds each dnsResolve/isResolvable/isInNet lookup.
	DNSTimeout time.Duration
	Resolver   Resolver
	// LocalIPOverride is consulted on every myIpAddress call; a non-empty
	// result wins over interface discovery. Defaults to reading
	// EnvOverrideLocalIP from the environment.
	LocalIPOverride func() string
	// Now feeds the calendar functions.
	Now func() time.Time
}

// Engine compiles PAC scripts into sandboxed VMs bound to the PAC host
// functions. DNS results are shared between every script it compiles.
type Engine struct {
	opts     Options
	dnsCache *expirable.LRU[string, string] // "" marks a negative entry

	myIPMu     sync.RWMutex
	myIPCache  string
	myIPExpiry time.Time
}

// NewEngine creates a PAC evaluation engine.
func NewEngine(opts Options) *Engine {
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = DefaultExecTimeout
	}
	if opts.DNSTimeout <= 0 {
		opts.DNSTimeout = DefaultDNSTimeout
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.LocalIPOverride == nil {
		opts.LocalIPOverride = func() string { return os.Getenv(EnvOverrideLocalIP) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		opts:     opts,
		dnsCache: expirable.NewLRU[string, string](dnsCacheSize, nil, dnsCacheTTL),
	}
}

// Compile evaluates scriptText once in a fresh VM and returns the bound
// entry point. The VM exposes only the PAC host functions.
func (e *Engine) Compile(name, scriptText string) (*Script, error) {
	vm := otto.New()
	if err := e.registerPacHelpers(vm); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	program, err := vm.Compile(name, scriptText)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}

	_, err = guardedRun(context.Background(), vm, e.opts.ExecTimeout, func() (otto.Value, error) {
		return vm.Run(program)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCompile, name, err)
	}

	entry, err := vm.Get(entryPoint)
	if err != nil || !entry.IsFunction() {
		return nil, fmt.Errorf("%w: %s: function '%s' not defined", ErrCompile, name, entryPoint)
	}
	if n := declaredParams(entry); n != 2 {
		return nil, fmt.Errorf("%w: %s: function '%s' must take (url, host), declares %d parameters", ErrCompile, name, entryPoint, n)
	}

	slog.Debug("PAC script compiled", "source", name, "size", len(scriptText))
	return &Script{
		name:    name,
		vm:      vm,
		entry:   entry,
		timeout: e.opts.ExecTimeout,
		turn:    make(chan struct{}, 1),
	}, nil
}

func declaredParams(fn otto.Value) int64 {
	length, err := fn.Object().Get("length")
	if err != nil {
		return -1
	}
	n, err := length.ToInteger()
	if err != nil {
		return -1
	}
	return n
}

// guardedRun executes fn on vm with a wall-clock budget. Expiry interrupts
// the VM between statements; the resulting unwind is reported as ErrTimeout.
func guardedRun(ctx context.Context, vm *otto.Otto, budget time.Duration, fn func() (otto.Value, error)) (value otto.Value, err error) {
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	interrupt := make(chan func(), 1)
	vm.Interrupt = interrupt
	done := make(chan struct{})

	defer func() {
		close(done)
		vm.Interrupt = nil
		if caught := recover(); caught != nil {
			if caught == errHalt {
				err = fmt.Errorf("%w after %s: %w", ErrTimeout, budget, runCtx.Err())
				return
			}
			err = fmt.Errorf("%w: panic: %v", ErrRuntime, caught)
		}
	}()

	go func() {
		select {
		case <-runCtx.Done():
			interrupt <- func() { panic(errHalt) }
		case <-done:
		}
	}()

	value, err = fn()
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return value, err
}

// --- DNS and local address, shared by all compiled scripts ---

// resolve returns the first address for host, preferring IPv4. Failures
// (including timeouts) report false and are cached negatively.
func (e *Engine) resolve(host string) (string, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", false
	}
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return ip.String(), true
	}

	if ip, found := e.dnsCache.Get(host); found {
		slog.Debug("PAC dnsResolve cache hit", "host", host, "ip", ip)
		return ip, ip != ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.DNSTimeout)
	defer cancel()
	addrs, err := e.opts.Resolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		var dnsErr *net.DNSError
		switch {
		case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
			slog.Debug("PAC dnsResolve: host not found", "host", host)
		case errors.Is(err, context.DeadlineExceeded):
			slog.Warn("PAC dnsResolve: lookup timed out", "host", host, "timeout", e.opts.DNSTimeout)
		default:
			slog.Warn("PAC dnsResolve: lookup failed", "host", host, "error", err)
		}
		e.dnsCache.Add(host, "")
		return "", false
	}

	resolved := addrs[0]
	for _, addr := range addrs {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			resolved = addr
			break
		}
	}
	e.dnsCache.Add(host, resolved)
	return resolved, true
}

func (e *Engine) myIPAddress() string {
	if override := strings.TrimSpace(e.opts.LocalIPOverride()); override != "" {
		return override
	}

	e.myIPMu.RLock()
	ip, valid := e.myIPCache, e.opts.Now().Before(e.myIPExpiry)
	e.myIPMu.RUnlock()
	if valid && ip != "" {
		return ip
	}

	ip = findMyIP()
	e.myIPMu.Lock()
	e.myIPCache = ip
	e.myIPExpiry = e.opts.Now().Add(myIPCacheTTL)
	e.myIPMu.Unlock()
	return ip
}

// Close drops cached DNS and local address results.
func (e *Engine) Close() {
	e.dnsCache.Purge()
	e.myIPMu.Lock()
	e.myIPCache, e.myIPExpiry = "", time.Time{}
	e.myIPMu.Unlock()
}
