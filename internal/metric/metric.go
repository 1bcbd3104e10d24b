// Package metric scores how far apart two equally sized RGB buffers are.
//
// The score is the L1 distance: the sum of |a[i]-b[i]| over every channel
// byte. Three kernels compute it and all of them return the same integer
// for the same input:
//
//   - Scalar: one byte at a time, available everywhere.
//   - SSE2:   16-byte lanes reduced with PSADBW (amd64 assembly).
//   - NEON:   16-byte lanes, absolute difference widened into 16-bit
//     accumulators (arm64 assembly, portable Go lanes elsewhere).
package metric

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/cpu"

	"github.com/kiesman99/mosaic/pkg/tile"
)

// NoSIMDEnv names the environment variable that forces the scalar kernel.
const NoSIMDEnv = "MOSAIC_NO_SIMD"

// Backend identifies a distance kernel
type Backend int

const (
	BackendScalar Backend = iota
	BackendSSE2
	BackendNEON
)

func (b Backend) String() string {
	switch b {
	case BackendScalar:
		return "scalar"
	case BackendSSE2:
		return "sse2"
	case BackendNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Metric computes the L1 distance between two flattened RGB buffers of
// equal length. Implementations are stateless and safe for concurrent use.
type Metric interface {
	Backend() Backend
	Distance(a, b []byte) uint64
}

var (
	// Scalar is the portable reference kernel.
	Scalar Metric = scalarMetric{}
	// SSE2 is the x86 kernel. Outside amd64 it computes the same value
	// without vector instructions.
	SSE2 Metric = sse2Metric{}
	// NEON is the arm64 kernel. Outside arm64 it runs on portable lane
	// types and computes the same value.
	NEON Metric = neonMetric{}
)

var (
	hasSSE2  = haveSSE2Asm && cpu.X86.HasSSE2
	hasASIMD = haveNEONAsm && cpu.ARM64.HasASIMD
)

// Between scores two images. Both must have the same dimensions; tiles and
// blocks always share the configured tile size, so a mismatch is a bug in
// the caller.
func Between(m Metric, a, b *tile.Image) uint64 {
	if a.Width != b.Width || a.Height != b.Height {
		panic(fmt.Sprintf("metric: image dimensions differ: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height))
	}
	return m.Distance(a.Pix, b.Pix)
}

// Select returns the kernel to use. Without simd, or when the host has no
// vector kernel, the scalar kernel is returned.
func Select(simd bool) Metric {
	m := selectBackend(simd)
	log.WithFields(log.Fields{
		"backend": m.Backend(),
		"simd":    simd,
		"arch":    runtime.GOARCH,
	}).Debug("Distance kernel selected")
	return m
}

func selectBackend(simd bool) Metric {
	if !simd || noSIMD() {
		return Scalar
	}
	switch {
	case hasSSE2:
		return SSE2
	case hasASIMD:
		return NEON
	default:
		return Scalar
	}
}

// Available lists the kernels that run natively on this host, scalar first.
func Available() []Metric {
	res := []Metric{Scalar}
	if hasSSE2 {
		res = append(res, SSE2)
	}
	if hasASIMD {
		res = append(res, NEON)
	}
	return res
}

// ByName resolves "scalar", "sse2" or "neon".
func ByName(name string) (Metric, error) {
	switch strings.ToLower(name) {
	case "scalar", "generic":
		return Scalar, nil
	case "sse2", "x86":
		return SSE2, nil
	case "neon", "arm":
		return NEON, nil
	default:
		return nil, fmt.Errorf("unknown distance backend: %s", name)
	}
}

func noSIMD() bool {
	val := os.Getenv(NoSIMDEnv)
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

func checkLen(a, b []byte) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("metric: buffer lengths differ: %d vs %d", len(a), len(b)))
	}
}
