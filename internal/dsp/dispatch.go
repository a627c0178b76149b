package dsp

import "github.com/klauspost/cpuid/v2"

// BatchWidth reports a per-block batch width in frames derived from the
// CPU's vector features (16 for AVX-512F, 8 for AVX2, 4 for SSE4, else 1).
// It is a capability report only: no loop in this package consumes it, and
// the filter and reverb loops process one frame at a time.
func BatchWidth() int {
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		return 16
	case cpuid.CPU.Supports(cpuid.AVX2):
		return 8
	case cpuid.CPU.Supports(cpuid.SSE4):
		return 4
	default:
		return 1
	}
}
