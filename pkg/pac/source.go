package pac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signature is the change token a Source hands out with each fetch.
type Signature struct {
	Tag string    // content identity (Last-Modified, mtime+size, digest)
	At  time.Time // when the content was last confirmed current
}

// Source supplies PAC script text. Fetch may return ErrNotModified when the
// content behind prev is still current; the returned Signature is then the
// refreshed token.
type Source interface {
	fmt.Stringer
	Fetch(ctx context.Context, prev Signature) (string, Signature, error)
	// HasChanged is a cheap check whether content may differ from prev.
	HasChanged(prev Signature) bool
}

// StringSource serves a fixed in-memory script.
type StringSource struct {
	name   string
	script string
	tag    string
}

// NewStringSource wraps script; name identifies it in logs.
func NewStringSource(name, script string) *StringSource {
	sum := sha256.Sum256([]byte(script))
	return &StringSource{name: name, script: script, tag: hex.EncodeToString(sum[:])}
}

func (s *StringSource) String() string { return s.name }

func (s *StringSource) Fetch(context.Context, Signature) (string, Signature, error) {
	return s.script, Signature{Tag: s.tag, At: time.Now()}, nil
}

func (s *StringSource) HasChanged(prev Signature) bool { return prev.Tag != s.tag }
