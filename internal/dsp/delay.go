package dsp

import "math"

// MaxDelaySeconds bounds the delay line length.
const MaxDelaySeconds = 1.0

// Delay is a stereo delay line whose output is fed back into its own input
// through Feedback. Process replaces the block with the delayed signal only.
type Delay struct {
	Time     *Param // seconds
	Feedback *Param

	sampleRate float64
	buf        [2][]float32
	write      int
}

// NewDelay allocates a delay line long enough for MaxDelaySeconds.
func NewDelay(sampleRate int) *Delay {
	size := int(math.Ceil(MaxDelaySeconds*float64(sampleRate))) + 1
	return &Delay{
		Time:       NewParam(0),
		Feedback:   NewParam(0),
		sampleRate: float64(sampleRate),
		buf:        [2][]float32{make([]float32, size), make([]float32, size)},
	}
}

// Process runs the delay over interleaved stereo audio in place.
func (d *Delay) Process(block []float32) {
	size := len(d.buf[0])
	samples := int(math.Round(Clamp(d.Time.Get(), 0, MaxDelaySeconds) * d.sampleRate))
	samples = max(1, min(samples, size-1))
	fb := float32(Clamp(d.Feedback.Get(), 0, 0.99))

	for i := 0; i+1 < len(block); i += 2 {
		read := d.write - samples
		if read < 0 {
			read += size
		}
		for ch := range 2 {
			delayed := d.buf[ch][read]
			d.buf[ch][d.write] = block[i+ch] + fb*delayed
			block[i+ch] = delayed
		}
		d.write++
		if d.write == size {
			d.write = 0
		}
	}
}
