package metric

type scalarMetric struct{}

func (scalarMetric) Backend() Backend { return BackendScalar }

func (scalarMetric) Distance(a, b []byte) uint64 {
	checkLen(a, b)
	return sumAbsDiff(a, b)
}

// sumAbsDiff is the byte-at-a-time loop, also used for the tails of the
// vector kernels.
func sumAbsDiff(a, b []byte) uint64 {
	b = b[:len(a)]
	var sum uint64
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return sum
}
