package dsp

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// BandKind selects the EQ band shape.
type BandKind int

const (
	LowShelf BandKind = iota
	Peak
	HighShelf
)

// Default three-band crossover points.
const (
	LowBandHz  = 320
	MidBandHz  = 1000
	HighBandHz = 3200
	bandQ      = 0.707
	midQ       = 0.5
)

// EQBand is one shelving or peaking stage with a gain in dB.
type EQBand struct {
	Kind       BandKind
	Frequency  float64
	GainDB     *Param
	sampleRate float64

	applied  float64
	sections [2]*biquad.Section
}

// NewEQBand creates a flat band at the kind's default frequency.
func NewEQBand(kind BandKind, sampleRate int) *EQBand {
	b := &EQBand{
		Kind:       kind,
		GainDB:     NewParam(0),
		sampleRate: float64(sampleRate),
	}
	switch kind {
	case LowShelf:
		b.Frequency = LowBandHz
	case Peak:
		b.Frequency = MidBandHz
	default:
		b.Frequency = HighBandHz
	}
	c := b.coefficients(0)
	b.sections[0] = biquad.NewSection(c)
	b.sections[1] = biquad.NewSection(c)
	return b
}

func (b *EQBand) coefficients(gainDB float64) biquad.Coefficients {
	switch b.Kind {
	case LowShelf:
		return design.LowShelf(b.Frequency, gainDB, bandQ, b.sampleRate)
	case Peak:
		return design.Peak(b.Frequency, gainDB, midQ, b.sampleRate)
	default:
		return design.HighShelf(b.Frequency, gainDB, bandQ, b.sampleRate)
	}
}

// Process filters interleaved stereo audio in place.
func (b *EQBand) Process(block []float32) {
	g := b.GainDB.Get()
	if g != b.applied {
		c := b.coefficients(g)
		b.sections[0].Coefficients = c
		b.sections[1].Coefficients = c
		b.applied = g
	}
	if g == 0 {
		return
	}
	processStereo(block, b.sections[0], b.sections[1])
}

func processStereo(block []float32, l, r *biquad.Section) {
	for i := 0; i+1 < len(block); i += 2 {
		block[i] = float32(l.ProcessSample(float64(block[i])))
		block[i+1] = float32(r.ProcessSample(float64(block[i+1])))
	}
}

// FilterType selects the sweepable filter response.
type FilterType int

const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
)

func (t FilterType) String() string {
	switch t {
	case Highpass:
		return "highpass"
	case Bandpass:
		return "bandpass"
	}
	return "lowpass"
}

func (t FilterType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// ParseFilterType maps a name to a FilterType.
func ParseFilterType(s string) (FilterType, bool) {
	switch s {
	case "lowpass":
		return Lowpass, true
	case "highpass":
		return Highpass, true
	case "bandpass":
		return Bandpass, true
	}
	return Lowpass, false
}

const (
	MinFilterHz     = 20
	MaxFilterHz     = 20000
	NeutralFilterHz = 1000
	filterQ         = 1.0
)

// Filter is the per-deck sweep filter. Bandpass runs a highpass and a
// lowpass at the same corner in series.
type Filter struct {
	Type      *Param // FilterType as float
	Frequency *Param
	Bypass    *Param // non-zero passes audio through untouched

	sampleRate float64
	appliedT   FilterType
	appliedF   float64
	hp, lp     [2]*biquad.Section
}

// NewFilter creates a fully open lowpass filter.
func NewFilter(sampleRate int) *Filter {
	f := &Filter{
		Type:       NewParam(float64(Lowpass)),
		Frequency:  NewParam(MaxFilterHz),
		Bypass:     NewParam(0),
		sampleRate: float64(sampleRate),
	}
	f.configure(Lowpass, MaxFilterHz)
	return f
}

func (f *Filter) configure(t FilterType, raw float64) {
	hz := Clamp(raw, MinFilterHz, min(MaxFilterHz, f.sampleRate*0.49))
	hpc := design.Highpass(hz, filterQ, f.sampleRate)
	lpc := design.Lowpass(hz, filterQ, f.sampleRate)
	for ch := range 2 {
		if f.hp[ch] == nil {
			f.hp[ch] = biquad.NewSection(hpc)
			f.lp[ch] = biquad.NewSection(lpc)
			continue
		}
		f.hp[ch].Coefficients = hpc
		f.lp[ch].Coefficients = lpc
	}
	f.appliedT = t
	f.appliedF = raw
}

// Process filters interleaved stereo audio in place.
func (f *Filter) Process(block []float32) {
	if f.Bypass.Get() != 0 {
		return
	}
	t := FilterType(f.Type.Get())
	hz := f.Frequency.Get()
	if t == Lowpass && hz >= MaxFilterHz {
		// Open lowpass.
		return
	}
	if t != f.appliedT || hz != f.appliedF {
		f.configure(t, hz)
	}
	switch t {
	case Highpass:
		processStereo(block, f.hp[0], f.hp[1])
	case Bandpass:
		processStereo(block, f.hp[0], f.hp[1])
		processStereo(block, f.lp[0], f.lp[1])
	default:
		processStereo(block, f.lp[0], f.lp[1])
	}
}
