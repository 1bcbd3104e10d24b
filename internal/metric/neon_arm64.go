//go:build arm64 && !purego

package metric

const haveNEONAsm = true

// neonBlocks16 sums |a[i]-b[i]| over len(a) bytes, a multiple of 16.
func neonBlocks16(a, b []byte) uint64 {
	return sadNEON(&a[0], &b[0], len(a))
}

// sadNEON is implemented in neon_arm64.s. Each iteration loads 16 bytes of
// both buffers, takes the per-lane absolute difference and widens it into
// two 16-bit accumulators that are folded into the total every
// neonFlushEvery iterations.
//
//go:noescape
func sadNEON(a, b *byte, n int) uint64
