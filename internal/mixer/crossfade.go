package mixer

import (
	"math"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/graph"
)

// Curve shapes the loudness transition between the decks.
type Curve int

const (
	Linear Curve = iota
	Sharp
	Smooth
)

func (c Curve) String() string {
	switch c {
	case Sharp:
		return "sharp"
	case Smooth:
		return "smooth"
	default:
		return "linear"
	}
}

func (c Curve) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseCurve accepts the names returned by Curve.String.
func ParseCurve(s string) (Curve, bool) {
	switch s {
	case "linear":
		return Linear, true
	case "sharp":
		return Sharp, true
	case "smooth":
		return Smooth, true
	}
	return Linear, false
}

// Gain maps a crossfader position in [0,1] to side's gain multiplier in [0,1].
// Position 0 is full deck A.
func Gain(position float64, curve Curve, side graph.Side) float64 {
	a, b := Gains(position, curve)
	if side == graph.SideB {
		return b
	}
	return a
}

// Gains returns both multipliers at once.
func Gains(position float64, curve Curve) (a, b float64) {
	p := dsp.Clamp(position, 0, 1)
	switch curve {
	case Sharp:
		a = math.Pow(1-p, 3)
		b = math.Pow(p, 3)
	case Smooth:
		// Equal power: both sides are cos(π/4) at the midpoint.
		a = math.Cos(p * 0.5 * math.Pi)
		b = math.Cos((1 - p) * 0.5 * math.Pi)
	default:
		a = 1 - p
		b = p
	}
	return dsp.Clamp(a, 0, 1), dsp.Clamp(b, 0, 1)
}
