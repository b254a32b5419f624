package vm

import (
	"errors"
	"fmt"

	"alkanes/internal/errs"
)

var errOutOfFuel = errs.ErrOutOfFuel

// CallStatus is the status code returned to the guest from __call,
// __staticcall and __delegatecall (spec.md §4.6).
type CallStatus int32

const (
	StatusOK CallStatus = 0
	StatusRevert CallStatus = 1
)

// ClassifyTrap maps an error raised during guest execution to the trap
// taxonomy of spec.md §4.6, so the host can decide how to revert and what
// to log. Traps not recognized as one of the named sentinels still revert,
// just without a specific classification (spec.md: "all traps are
// converted by the host into a reverting return").
func ClassifyTrap(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errs.ErrOutOfFuel):
		return "OutOfFuel"
	case errors.Is(err, errs.ErrMemoryOutOfBounds):
		return "MemoryOutOfBounds"
	case errors.Is(err, errs.ErrInvalidHostCall):
		return "InvalidHostCall"
	case errors.Is(err, errs.ErrStackOverflow):
		return "StackOverflow"
	case errors.Is(err, errs.ErrModuleValidationError):
		return "ModuleValidationError"
	case errors.Is(err, errs.ErrGuestAbort):
		var ga *errs.GuestAbort
		if errors.As(err, &ga) {
			return fmt.Sprintf("GuestAbort(%d)", ga.Code)
		}
		return "GuestAbort"
	default:
		return "Unknown"
	}
}
