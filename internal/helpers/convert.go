// Package helpers provides byte-level and numeric conversion utilities.
//
// The DNS wire format is built from fixed-width big-endian integers. The
// split/combine helpers here are the single place where those widths are
// assembled and disassembled, and the clamp helpers guard the places where a
// slice length becomes a 16-bit wire count.
package helpers

import "math"

func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// ClampInt restricts v to the range [lowerLimit, upperLimit].
func ClampInt(v, lowerLimit, upperLimit int) int {
	return clampInt(v, lowerLimit, upperLimit)
}

// ClampIntToUint16 converts v to uint16 with clamping.
// Values below 0 become 0; values above math.MaxUint16 become math.MaxUint16.
func ClampIntToUint16(v int) uint16 {
	clamped := clampInt(v, 0, math.MaxUint16)
	return uint16(clamped) //nolint:gosec // clamped to valid range
}

// ClampIntToUint8 converts v to uint8 with clamping.
func ClampIntToUint8(v int) uint8 {
	clamped := clampInt(v, 0, math.MaxUint8)
	return uint8(clamped) //nolint:gosec // clamped to valid range
}
