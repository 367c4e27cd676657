package engine

import (
	"encoding/binary"
	"math"
)

// Reader returns a pull-model byte stream of float32 little-endian
// interleaved stereo, suitable for a speaker that reads from an io.Reader.
func (e *Engine) Reader() *StreamReader {
	return &StreamReader{e: e}
}

// StreamReader renders audio on demand for each Read.
type StreamReader struct {
	e   *Engine
	buf []float32
}

func (r *StreamReader) Read(p []byte) (int, error) {
	if r.e.State() == StateClosed {
		return 0, ErrClosed
	}
	frames := len(p) / (4 * Channels)
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames*Channels {
		r.buf = make([]float32, frames*Channels)
	}
	block := r.buf[:frames*Channels]
	r.e.Render(block)
	for i, s := range block {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return len(block) * 4, nil
}
