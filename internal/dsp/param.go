// Package dsp holds the signal-processing stages of the studio graph. Each
// stage is controlled through scalar Params that the control side writes
// and the renderer picks up at the start of its next block.
package dsp

import (
	"math"
	"sync/atomic"
)

// Param is a single scalar owned by one node.
type Param struct {
	bits atomic.Uint64
}

// NewParam returns a Param holding v.
func NewParam(v float64) *Param {
	p := &Param{}
	p.Set(v)
	return p
}

func (p *Param) Set(v float64) { p.bits.Store(math.Float64bits(v)) }

func (p *Param) Get() float64 { return math.Float64frombits(p.bits.Load()) }

// DBToGain converts decibels to a linear amplitude factor.
func DBToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
