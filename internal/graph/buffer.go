package graph

// Buffer is decoded audio: interleaved stereo float32 at SampleRate.
type Buffer struct {
	Data       []float32
	SampleRate int
}

// Frames returns the number of stereo frames.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Data) / 2
}

// Duration returns the length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}
