package pac

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const reloadKey = "reload"

type cacheEntry struct {
	loaded    bool // at least one load attempt finished
	signature Signature
	digest    [sha256.Size]byte
	script    *Script
	lastErr   error
}

// Loader owns the compiled script for one Source. Readers share the cached
// script; a reload (change check, fetch, compile) runs at most once at a
// time and swaps the entry whole.
type Loader struct {
	source Source
	engine *Engine
	group  singleflight.Group

	mu    sync.RWMutex
	entry cacheEntry

	compiles atomic.Int64
}

// NewLoader binds source to engine. Nothing is fetched until Resolve.
func NewLoader(source Source, engine *Engine) (*Loader, error) {
	if source == nil {
		return nil, errors.New("PAC source cannot be nil")
	}
	if engine == nil {
		return nil, errors.New("PAC engine cannot be nil")
	}
	return &Loader{source: source, engine: engine}, nil
}

// Source returns the script source.
func (l *Loader) Source() Source { return l.source }

// LastError returns the most recent fetch or compile failure, or nil if the
// last load succeeded.
func (l *Loader) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entry.lastErr
}

// Compiles returns how many times script text has been compiled.
func (l *Loader) Compiles() int64 { return l.compiles.Load() }

// Resolve returns the current compiled script, reloading it first if the
// source reports a change. A failed reload keeps serving the previous good
// script; with no previous script the failure is returned.
func (l *Loader) Resolve(ctx context.Context) (*Script, error) {
	l.mu.RLock()
	entry := l.entry
	l.mu.RUnlock()

	if entry.loaded && !l.source.HasChanged(entry.signature) {
		if entry.script != nil {
			return entry.script, nil
		}
		return nil, entry.lastErr
	}

	// The fetch must not be cancelled by whichever caller happened to start it.
	reloadCtx := context.WithoutCancel(ctx)
	v, err, shared := l.group.Do(reloadKey, func() (interface{}, error) {
		return l.reload(reloadCtx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("PAC reload shared with concurrent caller", "source", l.source.String())
	}
	return v.(*Script), nil
}

func (l *Loader) reload(ctx context.Context) (*Script, error) {
	l.mu.RLock()
	prev := l.entry
	l.mu.RUnlock()

	// Another flight may have completed between the caller's check and ours.
	if prev.loaded && prev.script != nil && !l.source.HasChanged(prev.signature) {
		return prev.script, nil
	}

	since := prev.signature
	if prev.script == nil {
		since = Signature{}
	}

	text, sig, err := l.source.Fetch(ctx, since)
	if errors.Is(err, ErrNotModified) && prev.script != nil {
		l.store(cacheEntry{loaded: true, signature: sig, digest: prev.digest, script: prev.script, lastErr: prev.lastErr})
		return prev.script, nil
	}
	if err != nil {
		if errors.Is(err, ErrNotModified) {
			err = fmt.Errorf("%w: %s reported not modified with no cached script", ErrFetch, l.source)
		}
		return l.fail(prev, sig, err)
	}

	digest := sha256.Sum256([]byte(text))
	if prev.script != nil && digest == prev.digest {
		slog.Debug("PAC script content unchanged, keeping compiled script", "source", l.source.String())
		l.store(cacheEntry{loaded: true, signature: sig, digest: digest, script: prev.script})
		return prev.script, nil
	}

	script, err := l.engine.Compile(l.source.String(), text)
	l.compiles.Add(1)
	if err != nil {
		return l.fail(prev, sig, err)
	}

	slog.Info("PAC script loaded", "source", l.source.String(), "size", len(text))
	l.store(cacheEntry{loaded: true, signature: sig, digest: digest, script: script})
	return script, nil
}

// fail records err. The failed signature is kept so an unchanged broken
// source is not refetched on every call.
func (l *Loader) fail(prev cacheEntry, sig Signature, err error) (*Script, error) {
	tag := sig.Tag
	if tag == "" {
		tag = prev.signature.Tag
	}
	l.store(cacheEntry{
		loaded:    true,
		signature: Signature{Tag: tag, At: time.Now()},
		digest:    prev.digest,
		script:    prev.script,
		lastErr:   err,
	})

	if prev.script == nil {
		slog.Error("PAC script unavailable", "source", l.source.String(), "error", err)
		return nil, err
	}
	slog.Warn("PAC reload failed, keeping previous script", "source", l.source.String(), "error", err)
	return prev.script, nil
}

func (l *Loader) store(entry cacheEntry) {
	l.mu.Lock()
	l.entry = entry
	l.mu.Unlock()
}
