package pac

import "errors"

// Failure classes for PAC loading and evaluation. Errors returned by this
// package wrap one of these; test with errors.Is.
var (
	ErrFetch       = errors.New("pac: script fetch failed")
	ErrCompile     = errors.New("pac: script compile failed")
	ErrRuntime     = errors.New("pac: script runtime error")
	ErrTimeout     = errors.New("pac: execution budget exceeded")
	ErrNotModified = errors.New("pac: script not modified")
)

// errHalt is the interrupt payload used to unwind the VM when its budget expires.
var errHalt = errors.New("pac: halt")
