// Package alkanes holds the domain primitives shared by every subsystem:
// 128-bit integers, alkane/rune identifiers, cellpacks and edicts. It has no
// internal dependencies so that guest-facing code and host code can both
// import it without creating cycles.
package alkanes

import (
	"fmt"

	"github.com/holiman/uint256"
)

// U128 is an unsigned 128-bit integer. It is backed by a 256-bit
// holiman/uint256.Int with the top 128 bits always held at zero; this lets
// the balance algebra and id arithmetic reuse uint256's checked
// add/sub/overflow primitives instead of a hand-rolled big integer.
type U128 struct {
	v uint256.Int
}

// maxU128 is 2^128 - 1, used to bound-check every value that enters a U128.
var maxU128 = func() uint256.Int {
	var m uint256.Int
	m.SetAllOne()
	m.Rsh(&m, 128)
	return m
}()

// ZeroU128 is the additive identity.
var ZeroU128 = U128{}

// U128FromUint64 builds a U128 from a uint64.
func U128FromUint64(v uint64) U128 {
	var out U128
	out.v.SetUint64(v)
	return out
}

// U128FromBytesBE constructs a U128 from big-endian bytes (at most 16 of them).
func U128FromBytesBE(b []byte) (U128, error) {
	if len(b) > 16 {
		return U128{}, fmt.Errorf("alkanes: %d bytes overflow a u128", len(b))
	}
	var out U128
	out.v.SetBytes(b)
	return out, nil
}

// Bytes16BE renders the value as 16 big-endian bytes.
func (u U128) Bytes16BE() [16]byte {
	var out [16]byte
	b := u.v.Bytes32()
	copy(out[:], b[16:])
	return out
}

// Uint64 returns the low 64 bits, discarding anything above 2^64-1. Callers
// must only use this where the value is known to fit (e.g. vout indices).
func (u U128) Uint64() uint64 { return u.v.Uint64() }

// IsZero reports whether the value is zero.
func (u U128) IsZero() bool { return u.v.IsZero() }

// Cmp compares two U128 values the way uint256.Int.Cmp does.
func (u U128) Cmp(o U128) int { return u.v.Cmp(&o.v) }

// Add returns u+o, failing if the sum does not fit in 128 bits.
func (u U128) Add(o U128) (U128, error) {
	var sum uint256.Int
	overflow := sum.AddOverflow(&u.v, &o.v)
	if overflow || sum.Cmp(&maxU128) > 0 {
		return U128{}, fmt.Errorf("alkanes: u128 add overflow: %s + %s", u, o)
	}
	return U128{sum}, nil
}

// Sub returns u-o, failing if o > u (underflow).
func (u U128) Sub(o U128) (U128, error) {
	if u.v.Cmp(&o.v) < 0 {
		return U128{}, fmt.Errorf("alkanes: u128 sub underflow: %s - %s", u, o)
	}
	var diff uint256.Int
	diff.Sub(&u.v, &o.v)
	return U128{diff}, nil
}

// String renders the value in decimal.
func (u U128) String() string { return u.v.Dec() }
