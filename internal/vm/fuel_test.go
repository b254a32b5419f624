package vm

import (
	"errors"
	"testing"

	"alkanes/internal/errs"
)

func TestTankChargeDepletes(t *testing.T) {
	tank := NewTank(100)
	if err := tank.Charge(40); err != nil {
		t.Fatalf("charge: %v", err)
	}
	if got := tank.Remaining(); got != 60 {
		t.Fatalf("expected 60 remaining, got %d", got)
	}
}

func TestTankChargeInsufficientLeavesTankUntouched(t *testing.T) {
	tank := NewTank(10)
	if err := tank.Charge(11); !errors.Is(err, errs.ErrOutOfFuel) {
		t.Fatalf("expected ErrOutOfFuel, got %v", err)
	}
	if got := tank.Remaining(); got != 10 {
		t.Fatalf("failed charge must not deplete the tank, got %d", got)
	}
}

func TestComputeBlockFuel(t *testing.T) {
	got := ComputeBlockFuel(1_000_000, 1000, 250)
	want := uint64(250_000)
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestComputeBlockFuelZeroBlockSize(t *testing.T) {
	if got := ComputeBlockFuel(1_000_000, 0, 250); got != 0 {
		t.Fatalf("expected 0 for zero block vbytes, got %d", got)
	}
}

func TestCallFuelCeilingCapsAtRemaining(t *testing.T) {
	tank := NewTank(50)
	if got := CallFuelCeiling(tank, 1000); got != 50 {
		t.Fatalf("expected ceiling capped at 50, got %d", got)
	}
	if got := CallFuelCeiling(tank, 10); got != 10 {
		t.Fatalf("expected caller limit 10 honored, got %d", got)
	}
	if got := CallFuelCeiling(tank, 0); got != 50 {
		t.Fatalf("expected zero limit to mean 'use remaining', got %d", got)
	}
}

func TestHostCallCostProportional(t *testing.T) {
	small := HostCallCost("__load_transaction", 0)
	large := HostCallCost("__load_transaction", 1000)
	if large <= small {
		t.Fatalf("expected proportional cost to grow with size")
	}
}

func TestHostCallCostUnknownFallsBackToSmall(t *testing.T) {
	if got := HostCallCost("__not_a_real_call", 0); got != CostSmall {
		t.Fatalf("expected fallback to CostSmall, got %d", got)
	}
}

func TestClassifyTrapNames(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{errs.ErrOutOfFuel, "OutOfFuel"},
		{errs.ErrMemoryOutOfBounds, "MemoryOutOfBounds"},
		{errs.ErrInvalidHostCall, "InvalidHostCall"},
		{errs.ErrStackOverflow, "StackOverflow"},
		{errs.ErrModuleValidationError, "ModuleValidationError"},
		{&errs.GuestAbort{Code: 7}, "GuestAbort(7)"},
	}
	for _, c := range cases {
		if got := ClassifyTrap(c.err); got != c.want {
			t.Fatalf("ClassifyTrap(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}
