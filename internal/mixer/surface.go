// Package mixer is the parameter surface of the studio: every knob and fader
// is clamped, stored, and written straight onto the graph nodes.
package mixer

import (
	"errors"
	"sync"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/graph"
)

// Band is one of the three EQ bands.
type Band int

const (
	Low Band = iota
	Mid
	High
	numBands
)

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case Mid:
		return "mid"
	case High:
		return "high"
	}
	return "unknown"
}

// ParseBand accepts "low", "mid" and "high".
func ParseBand(s string) (Band, bool) {
	for b := Low; b < numBands; b++ {
		if b.String() == s {
			return b, true
		}
	}
	return Low, false
}

// Knob ranges.
const (
	MinEQDB          = -12.0
	MaxEQDB          = 12.0
	NeutralFilterHz  = dsp.NeutralFilterHz
	OpenFilterHz     = dsp.MaxFilterHz // a new deck's lowpass, passing everything
	MaxDelaySeconds  = dsp.MaxDelaySeconds
	DefaultKillDB    = -100.0
	DefaultFeedback  = 0.9
	DefaultDelayWet  = 0.5
	DefaultCrossfade = 0.5
)

var (
	ErrNotBuilt = errors.New("graph must be built before the surface")
	ErrBadSide  = errors.New("unknown deck side")
	ErrBadBand  = errors.New("unknown eq band")
)

// Options holds the tunable constants of the surface.
type Options struct {
	KillDB      float64 // attenuation applied to a killed band
	FeedbackCap float64 // upper bound of delay feedback
	DelayWet    float64 // delay return level when the delay is enabled
}

// DefaultOptions returns the stock constants.
func DefaultOptions() Options {
	return Options{KillDB: DefaultKillDB, FeedbackCap: DefaultFeedback, DelayWet: DefaultDelayWet}
}

// EQ is a deck's three band EQ.
type EQ struct {
	Low      float64 `json:"low"` // dB
	Mid      float64 `json:"mid"`
	High     float64 `json:"high"`
	KillLow  bool    `json:"killLow"`
	KillMid  bool    `json:"killMid"`
	KillHigh bool    `json:"killHigh"`
}

// FilterState is the sweep filter setting.
type FilterState struct {
	Type        dsp.FilterType `json:"type"`
	FrequencyHz float64        `json:"frequencyHz"`
}

// DelayState is the delay setting.
type DelayState struct {
	TimeSeconds float64 `json:"timeSeconds"`
	Feedback    float64 `json:"feedback"`
}

// Bypass flags per effect.
type Bypass struct {
	Filter     bool `json:"filter"`
	Distortion bool `json:"distortion"`
	Delay      bool `json:"delay"`
	Reverb     bool `json:"reverb"`
}

// FXChain is a deck's effect settings as the UI sees them. While an effect is
// bypassed its parameter reads as the neutral default.
type FXChain struct {
	Filter     FilterState `json:"filter"`
	Distortion float64     `json:"distortion"` // drive in [0,1]
	Delay      DelayState  `json:"delay"`
	Reverb     float64     `json:"reverb"` // wet mix in [0,1]
	Bypass     Bypass      `json:"bypass"`
}

// Channel is one deck's mixer strip.
type Channel struct {
	Volume   float64 `json:"volume"`
	EQ       EQ      `json:"eq"`
	FX       FXChain `json:"fx"`
	DeckGain float64 `json:"deckGain"` // volume times the crossfader multiplier
}

// MixerState is the global mixer setting.
type MixerState struct {
	Crossfader         float64 `json:"crossfader"`
	Curve              Curve   `json:"curve"`
	MasterVolume       float64 `json:"masterVolume"`
	LimiterThresholdDB float64 `json:"limiterThresholdDb"`
}

// saved holds the values an effect returns to when its bypass is released.
type saved struct {
	filterHz float64
	drive    float64
	feedback float64
	reverb   float64
}

type channel struct {
	volume float64
	eq     [numBands]float64
	kill   [numBands]bool
	fx     FXChain
	saved  saved
	nodes  *graph.DeckChain
}

// Surface owns the UI-facing parameter values and pushes them onto the graph.
type Surface struct {
	opts   Options
	router *graph.Router

	mu    sync.Mutex
	decks [2]*channel
	mix   MixerState
}

// NewSurface creates a surface over a built router and applies the defaults.
func NewSurface(r *graph.Router, opts Options) (*Surface, error) {
	if !r.Built() {
		return nil, ErrNotBuilt
	}
	if opts.FeedbackCap <= 0 || opts.FeedbackCap >= 1 {
		opts.FeedbackCap = DefaultFeedback
	}
	s := &Surface{
		opts:   opts,
		router: r,
		mix: MixerState{
			Crossfader:         DefaultCrossfade,
			Curve:              Smooth,
			MasterVolume:       1,
			LimiterThresholdDB: dsp.DefaultLimiterThresholdDB,
		},
	}
	for _, side := range []graph.Side{graph.SideA, graph.SideB} {
		s.decks[side] = &channel{
			volume: 1,
			fx:     FXChain{Filter: FilterState{Type: dsp.Lowpass, FrequencyHz: OpenFilterHz}},
			saved:  saved{filterHz: OpenFilterHz},
			nodes:  r.Deck(side),
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, side := range []graph.Side{graph.SideA, graph.SideB} {
		s.applyChannel(side)
	}
	s.applyMaster()
	return s, nil
}

// Options returns the constants in use.
func (s *Surface) Options() Options { return s.opts }

func (s *Surface) deck(side graph.Side) (*channel, error) {
	if side != graph.SideA && side != graph.SideB {
		return nil, ErrBadSide
	}
	return s.decks[side], nil
}

// --- Deck strip ---

// SetVolume sets side's volume in [0,1].
func (s *Surface) SetVolume(side graph.Side, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.volume = dsp.Clamp(v, 0, 1)
	s.applyDeckGain(side)
	return nil
}

// SetEQ stores a band gain in [-12,12] dB. A killed band stays silent until
// the kill is released.
func (s *Surface) SetEQ(side graph.Side, band Band, db float64) error {
	if band < 0 || band >= numBands {
		return ErrBadBand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.eq[band] = dsp.Clamp(db, MinEQDB, MaxEQDB)
	s.applyBand(ch, band)
	return nil
}

// SetKill silences or restores a band. Restoring applies the stored dB value.
func (s *Surface) SetKill(side graph.Side, band Band, kill bool) error {
	if band < 0 || band >= numBands {
		return ErrBadBand
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.kill[band] = kill
	s.applyBand(ch, band)
	return nil
}

// --- Effects ---

func (s *Surface) SetFilterType(side graph.Side, t dsp.FilterType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Filter.Type = t
	ch.nodes.Filter.Type.Set(float64(t))
	return nil
}

// SetFilterFrequency sets the corner in [20,20000] Hz.
func (s *Surface) SetFilterFrequency(side graph.Side, hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	hz = dsp.Clamp(hz, dsp.MinFilterHz, dsp.MaxFilterHz)
	ch.saved.filterHz = hz
	if !ch.fx.Bypass.Filter {
		ch.fx.Filter.FrequencyHz = hz
		ch.nodes.Filter.Frequency.Set(hz)
	}
	return nil
}

// SetFilterBypass passes audio around the filter and resets its frequency to
// the neutral 1000 Hz. Releasing the bypass restores the previous frequency.
func (s *Surface) SetFilterBypass(side graph.Side, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Bypass.Filter = on
	s.applyFilter(ch)
	return nil
}

// SetDrive sets distortion drive in [0,1].
func (s *Surface) SetDrive(side graph.Side, drive float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.saved.drive = dsp.Clamp(drive, 0, 1)
	s.applyDistortion(ch)
	return nil
}

func (s *Surface) SetDistortionBypass(side graph.Side, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Bypass.Distortion = on
	s.applyDistortion(ch)
	return nil
}

// SetDelayTime sets the delay in [0,1] seconds.
func (s *Surface) SetDelayTime(side graph.Side, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Delay.TimeSeconds = dsp.Clamp(seconds, 0, MaxDelaySeconds)
	s.applyDelay(ch)
	return nil
}

// SetDelayFeedback sets feedback in [0, FeedbackCap].
func (s *Surface) SetDelayFeedback(side graph.Side, fb float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.saved.feedback = dsp.Clamp(fb, 0, s.opts.FeedbackCap)
	s.applyDelay(ch)
	return nil
}

func (s *Surface) SetDelayBypass(side graph.Side, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Bypass.Delay = on
	s.applyDelay(ch)
	return nil
}

// SetReverbWet sets the reverb return in [0,1].
func (s *Surface) SetReverbWet(side graph.Side, wet float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.saved.reverb = dsp.Clamp(wet, 0, 1)
	s.applyReverb(ch)
	return nil
}

func (s *Surface) SetReverbBypass(side graph.Side, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return err
	}
	ch.fx.Bypass.Reverb = on
	s.applyReverb(ch)
	return nil
}

// --- Master section ---

// SetCrossfader moves the fader in [0,1] and recomputes both deck gains.
func (s *Surface) SetCrossfader(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mix.Crossfader = dsp.Clamp(position, 0, 1)
	s.applyDeckGain(graph.SideA)
	s.applyDeckGain(graph.SideB)
}

// SetCurve changes the crossfader curve and recomputes both deck gains.
func (s *Surface) SetCurve(c Curve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mix.Curve = c
	s.applyDeckGain(graph.SideA)
	s.applyDeckGain(graph.SideB)
}

// SetMasterVolume sets the master gain in [0,1].
func (s *Surface) SetMasterVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mix.MasterVolume = dsp.Clamp(v, 0, 1)
	s.applyMaster()
}

// SetLimiterThreshold sets the limiter threshold in [-24,0] dB.
func (s *Surface) SetLimiterThreshold(db float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mix.LimiterThresholdDB = dsp.Clamp(db, dsp.MinLimiterThresholdDB, dsp.MaxLimiterThresholdDB)
	s.applyMaster()
}

// --- Snapshots ---

// Channel returns side's strip.
func (s *Surface) Channel(side graph.Side) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.deck(side)
	if err != nil {
		return Channel{}, err
	}
	return Channel{
		Volume: ch.volume,
		EQ: EQ{
			Low: ch.eq[Low], Mid: ch.eq[Mid], High: ch.eq[High],
			KillLow: ch.kill[Low], KillMid: ch.kill[Mid], KillHigh: ch.kill[High],
		},
		FX:       ch.fx,
		DeckGain: s.deckGain(side),
	}, nil
}

// Mixer returns the master section.
func (s *Surface) Mixer() MixerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mix
}

// --- Node writes; callers hold s.mu ---

func (s *Surface) deckGain(side graph.Side) float64 {
	return s.decks[side].volume * Gain(s.mix.Crossfader, s.mix.Curve, side)
}

func (s *Surface) applyDeckGain(side graph.Side) {
	s.decks[side].nodes.Gain.Value.Set(s.deckGain(side))
}

func (s *Surface) applyBand(ch *channel, band Band) {
	db := ch.eq[band]
	if ch.kill[band] {
		db = s.opts.KillDB
	}
	switch band {
	case Low:
		ch.nodes.Low.GainDB.Set(db)
	case Mid:
		ch.nodes.Mid.GainDB.Set(db)
	case High:
		ch.nodes.High.GainDB.Set(db)
	}
}

func (s *Surface) applyFilter(ch *channel) {
	hz := ch.saved.filterHz
	bypass := 0.0
	if ch.fx.Bypass.Filter {
		hz = NeutralFilterHz
		bypass = 1
	}
	ch.fx.Filter.FrequencyHz = hz
	ch.nodes.Filter.Frequency.Set(hz)
	ch.nodes.Filter.Type.Set(float64(ch.fx.Filter.Type))
	ch.nodes.Filter.Bypass.Set(bypass)
}

func (s *Surface) applyDistortion(ch *channel) {
	drive := ch.saved.drive
	if ch.fx.Bypass.Distortion {
		drive = 0
	}
	ch.fx.Distortion = drive
	ch.nodes.Distortion.SetDrive(drive)
}

func (s *Surface) applyDelay(ch *channel) {
	fb := ch.saved.feedback
	wet := s.opts.DelayWet
	if ch.fx.Bypass.Delay {
		fb, wet = 0, 0
	}
	if ch.fx.Delay.TimeSeconds == 0 {
		wet = 0
	}
	ch.fx.Delay.Feedback = fb
	ch.nodes.Delay.Time.Set(ch.fx.Delay.TimeSeconds)
	ch.nodes.Delay.Feedback.Set(fb)
	ch.nodes.DelayWet.Value.Set(wet)
}

func (s *Surface) applyReverb(ch *channel) {
	wet := ch.saved.reverb
	if ch.fx.Bypass.Reverb {
		wet = 0
	}
	ch.fx.Reverb = wet
	ch.nodes.ReverbWet.Value.Set(wet)
}

func (s *Surface) applyChannel(side graph.Side) {
	ch := s.decks[side]
	for b := Low; b < numBands; b++ {
		s.applyBand(ch, b)
	}
	s.applyFilter(ch)
	s.applyDistortion(ch)
	s.applyDelay(ch)
	s.applyReverb(ch)
	s.applyDeckGain(side)
}

func (s *Surface) applyMaster() {
	s.router.Master().Value.Set(s.mix.MasterVolume)
	s.router.Limiter().Threshold.Set(s.mix.LimiterThresholdDB)
}
