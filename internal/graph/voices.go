package graph

import (
	"errors"
	"math"
	"sync"
)

// MaxPads is the capacity of the one-shot voice bus.
const MaxPads = 16

const maxVoices = 64

var (
	ErrBadPad   = errors.New("pad index out of range")
	ErrNoSample = errors.New("pad has no sample loaded")
)

type voice struct {
	buf   *Buffer
	start int64
	pos   int
	gain  float32
}

// VoiceBus plays one-shot pad samples at exact frames on the engine clock.
type VoiceBus struct {
	sampleRate int

	mu      sync.Mutex
	samples [MaxPads]*Buffer
	voices  []voice
}

// NewVoiceBus creates an empty bus for an engine at sampleRate.
func NewVoiceBus(sampleRate int) *VoiceBus {
	return &VoiceBus{sampleRate: sampleRate}
}

// SetSample installs (or with nil, removes) the sample for pad.
func (b *VoiceBus) SetSample(pad int, buf *Buffer) error {
	if pad < 0 || pad >= MaxPads {
		return ErrBadPad
	}
	b.mu.Lock()
	b.samples[pad] = buf
	b.mu.Unlock()
	return nil
}

// Loaded reports whether pad has a sample.
func (b *VoiceBus) Loaded(pad int) bool {
	if pad < 0 || pad >= MaxPads {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples[pad] != nil
}

// Trigger schedules pad to start at when (seconds on the engine clock).
// Times already in the past start at the next rendered frame.
func (b *VoiceBus) Trigger(pad int, when float64, gain float64) error {
	if pad < 0 || pad >= MaxPads {
		return ErrBadPad
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buf := b.samples[pad]
	if buf == nil {
		return ErrNoSample
	}
	if len(b.voices) >= maxVoices {
		copy(b.voices, b.voices[1:])
		b.voices = b.voices[:maxVoices-1]
	}
	b.voices = append(b.voices, voice{
		buf:   buf,
		start: int64(math.Round(when * float64(b.sampleRate))),
		gain:  float32(gain),
	})
	return nil
}

// Pending returns the number of scheduled or sounding voices.
func (b *VoiceBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.voices)
}

// Clear drops every scheduled and sounding voice.
func (b *VoiceBus) Clear() {
	b.mu.Lock()
	b.voices = b.voices[:0]
	b.mu.Unlock()
}

func (b *VoiceBus) Process(dst []float32, frame int64) {
	clear(dst)
	n := int64(len(dst) / 2)

	b.mu.Lock()
	defer b.mu.Unlock()
	write := 0
	for _, v := range b.voices {
		off := v.start - frame
		if off >= n {
			b.voices[write] = v
			write++
			continue
		}
		if off < 0 {
			off = 0
		}
		frames := v.buf.Frames()
		data := v.buf.Data
		for i := off; i < n && v.pos < frames; i++ {
			dst[2*i] += data[2*v.pos] * v.gain
			dst[2*i+1] += data[2*v.pos+1] * v.gain
			v.pos++
		}
		if v.pos < frames {
			b.voices[write] = v
			write++
		}
	}
	b.voices = b.voices[:write]
}
