package metric

// neonFlushEvery bounds how many pairwise adds a U16x8 accumulator takes
// before it is folded into the 64-bit total: each add contributes at most
// 2*255 per lane and 128*510 < 65536.
const neonFlushEvery = 128

// U8x16 holds one 128-bit register of unsigned bytes.
type U8x16 [16]uint8

// U16x8 holds one 128-bit register of unsigned 16-bit lanes.
type U16x8 [8]uint16

// LoadU8x16 loads the first 16 bytes of src.
func LoadU8x16(src []byte) U8x16 {
	return U8x16(src[:16])
}

// AbsDiff returns |a-b| per lane (vabdq_u8).
func (a U8x16) AbsDiff(b U8x16) U8x16 {
	var r U8x16
	for i := range r {
		hi, lo := a[i], b[i]
		if lo > hi {
			hi, lo = lo, hi
		}
		r[i] = hi - lo
	}
	return r
}

// PairwiseAddWiden adds adjacent byte pairs of v into the 16-bit lanes of
// acc (vpadalq_u8).
func (acc U16x8) PairwiseAddWiden(v U8x16) U16x8 {
	for i := range acc {
		acc[i] += uint16(v[2*i]) + uint16(v[2*i+1])
	}
	return acc
}

// ReduceSum adds all lanes into a 64-bit value (vaddlvq_u16).
func (acc U16x8) ReduceSum() uint64 {
	var sum uint64
	for _, v := range acc {
		sum += uint64(v)
	}
	return sum
}

type neonMetric struct{}

func (neonMetric) Backend() Backend { return BackendNEON }

func (neonMetric) Distance(a, b []byte) uint64 {
	checkLen(a, b)
	n := len(a) &^ 15
	var sum uint64
	if n > 0 {
		sum = neonBlocks16(a[:n], b[:n])
	}
	return sum + sumAbsDiff(a[n:], b[n:])
}

// neonLanes is the lane-type rendition of the arm64 kernel, used where no
// NEON assembly is built. len(a) must be a multiple of 16.
func neonLanes(a, b []byte) uint64 {
	var (
		total uint64
		acc   U16x8
		steps int
	)
	for i := 0; i < len(a); i += 16 {
		acc = acc.PairwiseAddWiden(LoadU8x16(a[i:]).AbsDiff(LoadU8x16(b[i:])))
		steps++
		if steps == neonFlushEvery {
			total += acc.ReduceSum()
			acc = U16x8{}
			steps = 0
		}
	}
	return total + acc.ReduceSum()
}
