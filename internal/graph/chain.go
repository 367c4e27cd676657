package graph

import (
	"github.com/pikomusic/studio/internal/dsp"
)

// Side names one of the two decks.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) String() string {
	if s == SideB {
		return "B"
	}
	return "A"
}

// MarshalText renders the side name in JSON.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseSide accepts "a"/"A"/"b"/"B".
func ParseSide(s string) (Side, bool) {
	switch s {
	case "a", "A":
		return SideA, true
	case "b", "B":
		return SideB, true
	}
	return SideA, false
}

// Reverb tail settings for the generated impulse response.
const (
	reverbSeconds = 2.0
	reverbDecay   = 3.0
)

// DeckChain is the fixed per-deck processing chain:
//
//	source -> low -> mid -> high -> deck gain -> pre-fx -> distortion -> filter
//	       -> dry + (delay -> delay wet) + (reverb -> reverb wet) -> master
//
// Gain carries volume times the crossfader multiplier.
type DeckChain struct {
	Low, Mid, High *dsp.EQBand
	Gain           *dsp.Gain
	PreFX          *dsp.Gain
	Distortion     dsp.Shaper
	Filter         *dsp.Filter
	Delay          *dsp.Delay
	DelayWet       *dsp.Gain
	Reverb         *dsp.Reverb
	ReverbWet      *dsp.Gain

	wet []float32
}

func newDeckChain(sampleRate int, side Side) (*DeckChain, error) {
	rv, err := dsp.NewReverb(dsp.ImpulseResponse(sampleRate, reverbSeconds, reverbDecay, uint64(side)+1))
	if err != nil {
		return nil, err
	}
	return &DeckChain{
		Low:       dsp.NewEQBand(dsp.LowShelf, sampleRate),
		Mid:       dsp.NewEQBand(dsp.Peak, sampleRate),
		High:      dsp.NewEQBand(dsp.HighShelf, sampleRate),
		Gain:      dsp.NewGain(1),
		PreFX:     dsp.NewGain(1),
		Filter:    dsp.NewFilter(sampleRate),
		Delay:     dsp.NewDelay(sampleRate),
		DelayWet:  dsp.NewGain(0),
		Reverb:    rv,
		ReverbWet: dsp.NewGain(0),
	}, nil
}

// process runs in through the chain in place and mixes the result into out.
func (c *DeckChain) process(in, out []float32) {
	if cap(c.wet) < len(in) {
		c.wet = make([]float32, len(in))
	}
	wet := c.wet[:len(in)]

	c.Low.Process(in)
	c.Mid.Process(in)
	c.High.Process(in)
	c.Gain.Process(in)
	c.PreFX.Process(in)
	c.Distortion.Process(in)
	c.Filter.Process(in)
	dsp.Mix(out, in, 1)

	copy(wet, in)
	c.Delay.Process(wet)
	c.DelayWet.Process(wet)
	dsp.Mix(out, wet, 1)

	if c.ReverbWet.Value.Get() == 0 {
		return
	}
	copy(wet, in)
	c.Reverb.Process(wet)
	c.ReverbWet.Process(wet)
	dsp.Mix(out, wet, 1)
}
