package safemath

import (
	"errors"
	"math/bits"
)

var ErrOverflow = errors.New("number overflow")

func Add64(a, b uint64) (uint64, bool) {
	v, carry := bits.Add64(a, b, 0)
	return v, carry == 0
}

func Sub64(a, b uint64) (uint64, bool) {
	v, borrow := bits.Sub64(a, b, 0)
	return v, borrow == 0
}

func Mul64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// PortionBps returns amount * bps / 10000, rounded down.
// Fails only if the intermediate product overflows.
func PortionBps(amount uint64, bps uint16) (uint64, bool) {
	v, ok := Mul64(amount, uint64(bps))
	if !ok {
		return 0, false
	}
	return v / 10_000, true
}

// SplitBps divides amount into one share per basis-point weight. The weights
// must sum to exactly 10000. Rounding dust goes to the first share so the
// shares always sum to exactly amount.
func SplitBps(amount uint64, weights ...uint16) ([]uint64, error) {
	if len(weights) == 0 {
		return nil, ErrBadSplit
	}
	total := uint32(0)
	for _, w := range weights {
		total += uint32(w)
	}
	if total != 10_000 {
		return nil, ErrBadSplit
	}

	shares := make([]uint64, len(weights))
	distributed := uint64(0)
	for i, w := range weights {
		share, ok := PortionBps(amount, w)
		if !ok {
			return nil, ErrOverflow
		}
		shares[i] = share
		distributed += share
	}
	// Exact-sum invariant: remainder is dust from integer division, strictly
	// less than len(weights), assigned to the first share.
	shares[0] += amount - distributed
	return shares, nil
}

var ErrBadSplit = errors.New("split weights must sum to 10000 basis points")
