//go:build !arm64 || purego

package metric

const haveNEONAsm = false

func neonBlocks16(a, b []byte) uint64 { return neonLanes(a, b) }
