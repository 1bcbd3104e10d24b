//go:build amd64 && !purego

package metric

const haveSSE2Asm = true

// sadBlocks16 sums |a[i]-b[i]| over len(a) bytes, a multiple of 16.
func sadBlocks16(a, b []byte) uint64 {
	return sadSSE2(&a[0], &b[0], len(a))
}

// sadSSE2 is implemented in sse2_amd64.s. Each iteration loads 16 bytes of
// both buffers and PSADBW folds them into two 64-bit partial sums.
//
//go:noescape
func sadSSE2(a, b *byte, n int) uint64
