package dsp

import (
	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"
)

const (
	DefaultLimiterThresholdDB = -1.0
	MinLimiterThresholdDB     = -24.0
	MaxLimiterThresholdDB     = 0.0
	limiterReleaseMs          = 50
)

// Limiter is the master brickwall stage. Attack and release are fixed; only
// the threshold moves.
type Limiter struct {
	Threshold *Param // dB

	lim     [2]*dynamics.Limiter
	applied float64
	scratch [2][]float64
}

// NewLimiter creates a stereo limiter at the default threshold.
func NewLimiter(sampleRate int) (*Limiter, error) {
	l := &Limiter{Threshold: NewParam(DefaultLimiterThresholdDB), applied: DefaultLimiterThresholdDB}
	for ch := range 2 {
		fx, err := dynamics.NewLimiter(float64(sampleRate))
		if err != nil {
			return nil, err
		}
		if err := fx.SetThreshold(DefaultLimiterThresholdDB); err != nil {
			return nil, err
		}
		if err := fx.SetRelease(limiterReleaseMs); err != nil {
			return nil, err
		}
		l.lim[ch] = fx
	}
	return l, nil
}

// Process limits interleaved stereo audio in place.
func (l *Limiter) Process(block []float32) {
	th := Clamp(l.Threshold.Get(), MinLimiterThresholdDB, MaxLimiterThresholdDB)
	if th != l.applied {
		ok := true
		for ch := range 2 {
			if err := l.lim[ch].SetThreshold(th); err != nil {
				ok = false
			}
		}
		if ok {
			l.applied = th
		}
	}
	deinterleave(block, &l.scratch)
	for ch := range 2 {
		l.lim[ch].ProcessInPlace(l.scratch[ch])
	}
	interleave(block, &l.scratch)
}
