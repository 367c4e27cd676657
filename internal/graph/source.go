package graph

import (
	"math"
	"sync"
)

// Source feeds a port. Process overwrites dst with the block that starts at
// frame on the engine clock.
type Source interface {
	Process(dst []float32, frame int64)
}

// BufferSource plays a decoded Buffer with a variable playback rate.
type BufferSource struct {
	buf     *Buffer
	step    float64 // buffer frames per engine frame at rate 1
	mu      sync.Mutex
	pos     float64 // in buffer frames
	rate    float64
	playing bool
	onEnded func()
}

// NewBufferSource wraps buf for playback on an engine running at engineRate.
func NewBufferSource(buf *Buffer, engineRate int) *BufferSource {
	step := 1.0
	if buf != nil && buf.SampleRate > 0 && engineRate > 0 {
		step = float64(buf.SampleRate) / float64(engineRate)
	}
	return &BufferSource{buf: buf, step: step, rate: 1}
}

// Buffer returns the underlying audio.
func (s *BufferSource) Buffer() *Buffer { return s.buf }

// OnEnded registers a callback fired (on its own goroutine) when playback
// reaches the end of the buffer.
func (s *BufferSource) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = fn
	s.mu.Unlock()
}

func (s *BufferSource) Play() {
	s.mu.Lock()
	if s.pos >= float64(s.buf.Frames()) {
		s.pos = 0
	}
	s.playing = true
	s.mu.Unlock()
}

func (s *BufferSource) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
}

func (s *BufferSource) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Seek moves the play head, clamped to the buffer.
func (s *BufferSource) Seek(seconds float64) {
	if math.IsNaN(seconds) {
		return
	}
	d := s.buf.Duration()
	seconds = max(0, min(seconds, d))
	s.mu.Lock()
	s.pos = seconds * float64(s.buf.SampleRate)
	s.mu.Unlock()
}

// Position returns the play head in seconds.
func (s *BufferSource) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.SampleRate == 0 {
		return 0
	}
	return s.pos / float64(s.buf.SampleRate)
}

// Duration returns the buffer length in seconds.
func (s *BufferSource) Duration() float64 { return s.buf.Duration() }

func (s *BufferSource) SetRate(r float64) {
	s.mu.Lock()
	s.rate = r
	s.mu.Unlock()
}

func (s *BufferSource) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *BufferSource) Process(dst []float32, _ int64) {
	clear(dst)
	s.mu.Lock()
	if !s.playing {
		s.mu.Unlock()
		return
	}
	data := s.buf.Data
	frames := s.buf.Frames()
	inc := s.step * s.rate
	ended := false
	for i := 0; i+1 < len(dst); i += 2 {
		idx := int(s.pos)
		if idx >= frames-1 {
			ended = true
			break
		}
		frac := float32(s.pos - float64(idx))
		a, b := idx*2, (idx+1)*2
		dst[i] = data[a] + (data[b]-data[a])*frac
		dst[i+1] = data[a+1] + (data[b+1]-data[a+1])*frac
		s.pos += inc
	}
	var cb func()
	if ended {
		s.playing = false
		s.pos = float64(frames)
		cb = s.onEnded
	}
	s.mu.Unlock()
	if cb != nil {
		go cb()
	}
}

// LiveInput is a ring buffer filled by a capture device and drained by the
// renderer. Missing audio renders as silence.
type LiveInput struct {
	mu   sync.Mutex
	ring []float32
	r, n int
}

// NewLiveInput holds up to capacity interleaved stereo samples.
func NewLiveInput(capacity int) *LiveInput {
	return &LiveInput{ring: make([]float32, capacity)}
}

// Write appends captured interleaved stereo samples, overwriting the oldest
// audio when the ring is full.
func (l *LiveInput) Write(samples []float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := len(l.ring)
	for _, v := range samples {
		w := (l.r + l.n) % size
		l.ring[w] = v
		if l.n < size {
			l.n++
		} else {
			l.r = (l.r + 1) % size
		}
	}
}

func (l *LiveInput) Process(dst []float32, _ int64) {
	clear(dst)
	l.mu.Lock()
	defer l.mu.Unlock()
	take := min(len(dst), l.n)
	size := len(l.ring)
	for i := 0; i < take; i++ {
		dst[i] = l.ring[(l.r+i)%size]
	}
	l.r = (l.r + take) % size
	l.n -= take
}
