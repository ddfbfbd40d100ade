package xtypes

import "testing"

// These assert the exact output of the canonical msb-halving-plus-mantissa
// approximation (uint128.go's ApproxSqrt doc comment), not merely "close to
// math.Sqrt" — reproducibility bit-for-bit is the consensus-critical
// property spec.md §9 demands, so an approximate bound here would miss the
// regressions that matter.
func TestApproxSqrtExactValues(t *testing.T) {
	cases := []struct {
		x    uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
		{6, 2},
		{7, 2},
		{8, 2},
		{9, 2},
		{15, 2},
		{16, 4},
		{64, 8},
		{1 << 30, 1 << 15},
	}
	for _, c := range cases {
		if got := U128FromUint64(c.x).ApproxSqrt(); got != c.want {
			t.Errorf("ApproxSqrt(%d) = %d, want %d", c.x, got, c.want)
		}
	}
}

func TestApproxSqrtU64DelegatesToUint128(t *testing.T) {
	for _, x := range []uint64{0, 1, 9, 16, 64, 1 << 30} {
		if got, want := ApproxSqrtU64(x), U128FromUint64(x).ApproxSqrt(); got != want {
			t.Errorf("ApproxSqrtU64(%d) = %d, want %d (U128FromUint64(x).ApproxSqrt())", x, got, want)
		}
	}
}

func TestApproxSqrtZeroIsZero(t *testing.T) {
	if got := (Uint128{}).ApproxSqrt(); got != 0 {
		t.Fatalf("ApproxSqrt of the zero value should be 0, got %d", got)
	}
}
