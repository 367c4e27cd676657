package dsp

import (
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-dsp/dsp/effects/reverb"
)

// ImpulseResponse generates a stereo decaying-noise impulse response.
func ImpulseResponse(sampleRate int, seconds, decay float64, seed uint64) [2][]float64 {
	length := max(1, int(float64(sampleRate)*seconds))
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var ir [2][]float64
	for ch := range ir {
		ir[ch] = make([]float64, length)
		for i := range ir[ch] {
			noise := rng.Float64()*2 - 1
			progress := float64(i) / float64(length)
			ir[ch][i] = noise * math.Pow(1-progress, decay)
		}
	}
	return ir
}

// Reverb is a stereo convolution reverb producing only the wet signal.
type Reverb struct {
	conv    [2]*reverb.ConvolutionReverb
	scratch [2][]float64
}

// NewReverb builds the convolver from an impulse response.
func NewReverb(ir [2][]float64) (*Reverb, error) {
	r := &Reverb{}
	for ch := range 2 {
		c, err := reverb.NewConvolutionReverb(ir[ch], 7)
		if err != nil {
			return nil, err
		}
		c.SetWetDry(1, 0)
		r.conv[ch] = c
	}
	return r, nil
}

// Process replaces interleaved stereo audio with the reverberated signal.
func (r *Reverb) Process(block []float32) {
	deinterleave(block, &r.scratch)
	for ch := range 2 {
		_ = r.conv[ch].ProcessInPlace(r.scratch[ch])
	}
	interleave(block, &r.scratch)
}

func deinterleave(block []float32, dst *[2][]float64) {
	frames := len(block) / 2
	for ch := range 2 {
		if cap(dst[ch]) < frames {
			dst[ch] = make([]float64, frames)
		}
		dst[ch] = dst[ch][:frames]
	}
	for i := 0; i < frames; i++ {
		dst[0][i] = float64(block[2*i])
		dst[1][i] = float64(block[2*i+1])
	}
}

func interleave(block []float32, src *[2][]float64) {
	for i := range src[0] {
		block[2*i] = float32(src[0][i])
		block[2*i+1] = float32(src[1][i])
	}
}
