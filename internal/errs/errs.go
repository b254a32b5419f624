// Package errs collects the sentinel errors the VM trap taxonomy and the
// indexer's error-propagation policy (spec.md §7) dispatch on with
// errors.Is, rather than string matching.
package errs

import "errors"

// VM trap taxonomy (spec.md §4.6).
var (
	ErrOutOfFuel             = errors.New("alkanes: out of fuel")
	ErrMemoryOutOfBounds     = errors.New("alkanes: memory access out of bounds")
	ErrInvalidHostCall       = errors.New("alkanes: invalid host call")
	ErrStackOverflow         = errors.New("alkanes: stack overflow")
	ErrModuleValidationError = errors.New("alkanes: module validation error")
)

// GuestAbort carries a guest-supplied abort code; it still satisfies
// errors.Is(err, ErrGuestAbort) via errors.Unwrap-free comparison of the
// sentinel through Is().
type GuestAbort struct {
	Code int32
}

var ErrGuestAbort = errors.New("alkanes: guest abort")

func (e *GuestAbort) Error() string { return ErrGuestAbort.Error() }
func (e *GuestAbort) Is(target error) bool { return target == ErrGuestAbort }

// Block/protostone-level error taxonomy (spec.md §7).
var (
	ErrRunestoneMalformed  = errors.New("alkanes: malformed runestone envelope")
	ErrProtostoneInvalid   = errors.New("alkanes: invalid protostone")
	ErrBalanceUnderflow    = errors.New("alkanes: balance underflow")
	ErrSMTCorruption       = errors.New("alkanes: smt node corrupted")
	ErrStorageIO           = errors.New("alkanes: storage I/O failure")
	ErrReorgDepthExceeded  = errors.New("alkanes: reorg depth exceeds configured bound")
	ErrBlockDecode         = errors.New("alkanes: block decode failure")
	ErrNodeTransport       = errors.New("alkanes: node transport failure")
)
