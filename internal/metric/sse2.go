package metric

type sse2Metric struct{}

func (sse2Metric) Backend() Backend { return BackendSSE2 }

func (sse2Metric) Distance(a, b []byte) uint64 {
	checkLen(a, b)
	n := len(a) &^ 15
	var sum uint64
	if n > 0 {
		sum = sadBlocks16(a[:n], b[:n])
	}
	return sum + sumAbsDiff(a[n:], b[n:])
}
