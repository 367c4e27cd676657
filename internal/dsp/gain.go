package dsp

// Gain scales interleaved stereo audio. Changes are ramped across one block
// to avoid zipper noise.
type Gain struct {
	Value *Param
	last  float64
	init  bool
}

// NewGain returns a gain stage at v.
func NewGain(v float64) *Gain {
	return &Gain{Value: NewParam(v)}
}

// Process applies the gain in place.
func (g *Gain) Process(block []float32) {
	target := g.Value.Get()
	if !g.init {
		g.last = target
		g.init = true
	}
	frames := len(block) / 2
	if frames == 0 {
		return
	}
	if g.last == target {
		if target == 1 {
			return
		}
		t := float32(target)
		for i := range block {
			block[i] *= t
		}
		return
	}
	step := (target - g.last) / float64(frames)
	cur := g.last
	for i := 0; i < frames; i++ {
		cur += step
		c := float32(cur)
		block[2*i] *= c
		block[2*i+1] *= c
	}
	g.last = target
}
