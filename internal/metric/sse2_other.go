//go:build !amd64 || purego

package metric

const haveSSE2Asm = false

func sadBlocks16(a, b []byte) uint64 { return sumAbsDiff(a, b) }
