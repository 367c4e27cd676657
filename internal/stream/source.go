// Package stream lets remote listeners hear the post-limiter master bus.
package stream

import (
	"encoding/binary"
	"math"

	"github.com/pikomusic/studio/internal/graph"
)

// Source is a graph tap the handlers subscribe to.
type Source interface {
	Connect(l *graph.Listener) error
	Disconnect(l *graph.Listener) error
	ListenerCount() int
}

// Float32ToBytes converts samples to float32 little-endian bytes.
func Float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// framer cuts tap blocks of any length into fixed-size frames.
type framer struct {
	size    int
	pending []float32
}

func newFramer(size int) *framer {
	return &framer{size: size}
}

// push appends block and returns every complete frame.
func (f *framer) push(block []float32) [][]float32 {
	f.pending = append(f.pending, block...)
	var out [][]float32
	for len(f.pending) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending)
		out = append(out, frame)
		f.pending = f.pending[f.size:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
	return out
}
