// SPDX-License-Identifier: MIT
//
// Package bitint provides power-of-2 helpers used for validating FFT
// window sizes and sizing audio buffers. All operations are O(1),
// allocation-free, and safe on the real-time path.
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size. Exact powers of 2
// are preserved (the size-1 subtraction keeps 8 -> 8 rather than 16).
// Non-positive sizes return 1.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len64(uint64(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of 2
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
