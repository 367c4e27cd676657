package dsp

import "math"

// RMS returns the root-mean-square level of a block.
func RMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, v := range block {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(block)))
}

// Mix adds src into dst scaled by gain.
func Mix(dst, src []float32, gain float32) {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] += src[i] * gain
	}
}
