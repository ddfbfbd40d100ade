package xtypes

import "math/bits"

// Uint128 is an unsigned 128-bit integer used by reward curves and
// virtual-position counters (spec.md §3.1). It is represented as a pair of
// 64-bit limbs so that ApproxSqrt can be reproduced bit-for-bit across
// implementations -- the consensus-critical property spec.md §9 demands.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// U128FromUint64 widens a uint64 into a Uint128.
func U128FromUint64(v uint64) Uint128 { return Uint128{Lo: v} }

// bit128 returns a Uint128 with only bit n set (0 <= n <= 127).
func bit128(n int) Uint128 {
	if n >= 64 {
		return Uint128{Hi: 1 << uint(n-64)}
	}
	return Uint128{Lo: 1 << uint(n)}
}

// Add returns a+b, wrapping silently on overflow (matching the source's
// unchecked 128-bit arithmetic; callers that care about overflow must check
// IsZero/Cmp themselves).
func (a Uint128) Add(b Uint128) Uint128 {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(a.Hi, b.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}
}

// Sub returns a-b.
func (a Uint128) Sub(b Uint128) Uint128 {
	lo, borrow := bits.Sub64(a.Lo, b.Lo, 0)
	hi, _ := bits.Sub64(a.Hi, b.Hi, borrow)
	return Uint128{Hi: hi, Lo: lo}
}

// Mul64 returns a * b where b is a 64-bit multiplier.
func (a Uint128) Mul64(b uint64) Uint128 {
	hiLo, lo := bits.Mul64(a.Lo, b)
	hi := a.Hi*b + hiLo
	return Uint128{Hi: hi, Lo: lo}
}

// And returns the bitwise AND of a and b.
func (a Uint128) And(b Uint128) Uint128 {
	return Uint128{Hi: a.Hi & b.Hi, Lo: a.Lo & b.Lo}
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Uint128) Cmp(b Uint128) int {
	if a.Hi != b.Hi {
		if a.Hi < b.Hi {
			return -1
		}
		return 1
	}
	if a.Lo != b.Lo {
		if a.Lo < b.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// IsZero reports whether a is zero.
func (a Uint128) IsZero() bool { return a.Hi == 0 && a.Lo == 0 }

// bitLen returns the position (1-based, counting from the low bit) of the
// most significant set bit, or 0 if a is zero.
func (a Uint128) bitLen() int {
	if a.Hi != 0 {
		return 64 + bits.Len64(a.Hi)
	}
	return bits.Len64(a.Lo)
}

// shiftRight shifts a right by n bits (0 <= n <= 127).
func (a Uint128) shiftRight(n uint) Uint128 {
	switch {
	case n == 0:
		return a
	case n >= 128:
		return Uint128{}
	case n >= 64:
		return Uint128{Hi: 0, Lo: a.Hi >> (n - 64)}
	default:
		lo := (a.Lo >> n) | (a.Hi << (64 - n))
		hi := a.Hi >> n
		return Uint128{Hi: hi, Lo: lo}
	}
}

// ApproxSqrt returns a deterministic 64-bit approximation of sqrt(x), used
// by reward curves and enterprise quadratic funding (spec.md §9).
//
// This is the canonical reference algorithm every implementation must
// reproduce bit-for-bit: locate the most significant set bit of x (msb_x),
// halve it to get the expected msb of the root (msb_z), then graft the
// mantissa bits immediately below msb_x -- shifted down and truncated to
// msb_z's own mantissa width -- onto msb_z's bit. This approximates
// sqrt(2^msb_x * (1+frac)) ~= 2^msb_z * (1+frac/2) without ever computing a
// true root, so it is cheap and -- critically -- exactly reproducible.
//
// x == 0 returns 0. x == 1 returns 1 (msb_x=0, msb_z=0, mantissa contributes
// nothing) -- this is the "specific non-obvious value" spec.md §9 item 3
// refers to; it is not special-cased.
func (x Uint128) ApproxSqrt() uint64 {
	if x.IsZero() {
		return 0
	}
	msbX := x.bitLen() - 1 // 0-based index of the highest set bit of x
	msbZ := msbX >> 1      // expected 0-based msb of the root

	msbZBit := uint64(1) << uint(msbZ)

	mantissaMask := bit128(msbX).Sub(U128FromUint64(1))
	mantissaX := x.And(mantissaMask)

	var mantissaZHi uint64
	if msbZBit>>1 != 0 {
		shifted := mantissaX.shiftRight(uint(msbX - msbZ))
		mask := (msbZBit >> 1) - 1
		mantissaZHi = shifted.Lo & mask
	}
	return msbZBit | mantissaZHi
}

// ApproxSqrtU64 is a convenience wrapper for 64-bit inputs (used pervasively
// by reward curves and enterprise quadratic funding, spec.md §9).
func ApproxSqrtU64(x uint64) uint64 {
	return U128FromUint64(x).ApproxSqrt()
}
