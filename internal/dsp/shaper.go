package dsp

import (
	"math"
	"sync/atomic"
)

// CurveResolution is the number of points in a generated transfer curve.
const CurveResolution = 44100

// DriveScale maps a 0..1 drive control onto the curve's k domain.
const DriveScale = 400

// DistortionCurve samples y = ((3+k)·x·20·π/180) / (π + k·|x|) for x in
// [-1, 1]. A non-finite k falls back to 0.
func DistortionCurve(k float64, n int) []float64 {
	if math.IsNaN(k) || math.IsInf(k, 0) {
		k = 0
	}
	if n < 2 {
		n = 2
	}
	const deg = math.Pi / 180
	curve := make([]float64, n)
	for i := range curve {
		x := float64(i)*2/float64(n-1) - 1
		curve[i] = ((3 + k) * x * 20 * deg) / (math.Pi + k*math.Abs(x))
	}
	return curve
}

// Shaper is a static waveshaper. A nil curve passes audio through.
type Shaper struct {
	curve atomic.Pointer[[]float64]
}

// SetDrive installs the curve for a 0..1 drive amount. Zero removes the
// curve entirely.
func (s *Shaper) SetDrive(drive float64) {
	if drive <= 0 || math.IsNaN(drive) {
		s.curve.Store(nil)
		return
	}
	c := DistortionCurve(drive*DriveScale, CurveResolution)
	s.curve.Store(&c)
}

// Curve returns the installed curve, or nil.
func (s *Shaper) Curve() []float64 {
	if p := s.curve.Load(); p != nil {
		return *p
	}
	return nil
}

// Process shapes interleaved audio in place.
func (s *Shaper) Process(block []float32) {
	p := s.curve.Load()
	if p == nil {
		return
	}
	curve := *p
	last := float64(len(curve) - 1)
	for i, v := range block {
		x := Clamp(float64(v), -1, 1)
		pos := (x + 1) / 2 * last
		idx := int(pos)
		if idx >= len(curve)-1 {
			block[i] = float32(curve[len(curve)-1])
			continue
		}
		frac := pos - float64(idx)
		block[i] = float32(curve[idx] + (curve[idx+1]-curve[idx])*frac)
	}
}
