// Package deck implements the per-deck transport: play state, cue and hot
// cues, scrubbing, beat loops and tempo sync.
package deck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/engine"
	"github.com/pikomusic/studio/internal/graph"
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Transport limits and defaults.
const (
	HotCues               = 8
	MinRate               = 0.92
	MaxRate               = 1.08
	DefaultBeatsPerSecond = 2.0
	DefaultLoopCheck      = 30 * time.Millisecond
	DefaultScrubFactor    = 0.1
)

// QuickLoopBeats lists the accepted beat counts for quick loops.
var QuickLoopBeats = [...]int{2, 4, 8, 16}

var (
	ErrNoTrack    = errors.New("no track loaded")
	ErrBadHotCue  = errors.New("hot cue index out of range")
	ErrEmptyCue   = errors.New("hot cue not set")
	ErrLoopOrder  = errors.New("loop out must be after loop in")
	ErrNoLoopIn   = errors.New("loop in not set")
	ErrBadBeats   = errors.New("unsupported loop length")
	ErrSelfSync   = errors.New("deck cannot sync to itself")
	ErrDeckClosed = errors.New("deck closed")
)

// Track is the metadata the UI hands to a deck load.
type Track struct {
	Src      string  `json:"src"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	CoverArt string  `json:"coverArt"`
	BPM      float64 `json:"bpm,omitempty"`
}

// Loop is the loop region. Out is always after In when both are set.
type Loop struct {
	In         *float64 `json:"in"`
	Out        *float64 `json:"out"`
	Active     bool     `json:"active"`
	BeatLength int      `json:"beatLength"`
}

// Snapshot is a consistent copy of the deck for the UI.
type Snapshot struct {
	Side     graph.Side        `json:"side"`
	Track    *Track            `json:"track"`
	State    State             `json:"state"`
	Position float64           `json:"position"`
	Duration float64           `json:"duration"`
	Rate     float64           `json:"rate"`
	Cue      *float64          `json:"cue"`
	HotCues  [HotCues]*float64 `json:"hotCues"`
	Loop     Loop              `json:"loop"`
	Synced   bool              `json:"synced"`
	LoadErr  string            `json:"loadError,omitempty"`
}

// Resumer starts a suspended audio engine.
type Resumer interface {
	Resume(ctx context.Context) error
}

// Ports is the part of the router a deck needs to swap its source.
type Ports interface {
	Reconnect(port graph.Port, src graph.Source) error
	Disconnect(port graph.Port) error
}

// Options tunes a deck.
type Options struct {
	LoopCheck   time.Duration
	ScrubFactor float64
}

// Deck is one transport. All methods are safe for concurrent use.
type Deck struct {
	side   graph.Side
	eng    Resumer
	ports  Ports
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	track     *Track
	src       *graph.BufferSource
	state     State
	rate      float64
	hot       [HotCues]*float64
	loop      Loop
	checker   *engine.Periodic
	synced    bool
	leader    *Deck
	followers map[*Deck]struct{}
	scrubbing bool
	wasPlay   bool
	loadErr   error
	gen       int
}

// New creates an empty deck on side.
func New(side graph.Side, eng Resumer, ports Ports, opts Options) *Deck {
	if opts.LoopCheck <= 0 {
		opts.LoopCheck = DefaultLoopCheck
	}
	if opts.ScrubFactor <= 0 {
		opts.ScrubFactor = DefaultScrubFactor
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Deck{
		side:      side,
		eng:       eng,
		ports:     ports,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		rate:      1,
		followers: make(map[*Deck]struct{}),
	}
}

// Side returns which deck this is.
func (d *Deck) Side() graph.Side { return d.side }

// Load replaces the deck's track. Hot cues, the loop and its checker are
// cleared and the new source is swapped onto the deck's port.
func (d *Deck) Load(t Track, buf *graph.Buffer, engineRate int) error {
	src := graph.NewBufferSource(buf, engineRate)

	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		return ErrDeckClosed
	}
	d.stopLoopLocked()
	d.gen++
	gen := d.gen
	if d.src != nil {
		d.src.Pause()
	}
	tr := t
	d.track = &tr
	d.src = src
	d.state = Stopped
	d.hot = [HotCues]*float64{}
	d.loop = Loop{}
	d.loadErr = nil
	d.scrubbing = false
	src.SetRate(d.rate)
	d.mu.Unlock()

	src.OnEnded(func() { d.ended(gen) })
	return d.ports.Reconnect(graph.DeckPort(d.side), src)
}

// FailLoad flags the deck with a decode error. Whatever was loaded is
// unloaded; the other deck is not touched.
func (d *Deck) FailLoad(t Track, err error) {
	d.mu.Lock()
	d.stopLoopLocked()
	d.gen++
	if d.src != nil {
		d.src.Pause()
	}
	tr := t
	d.track = &tr
	d.src = nil
	d.state = Stopped
	d.hot = [HotCues]*float64{}
	d.loop = Loop{}
	d.loadErr = err
	d.mu.Unlock()
	_ = d.ports.Disconnect(graph.DeckPort(d.side))
}

// LoadErr returns the last load failure, if any.
func (d *Deck) LoadErr() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadErr
}

func (d *Deck) ended(gen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	d.state = Stopped
}

// Play starts or resumes playback. It resumes a suspended engine first.
func (d *Deck) Play(ctx context.Context) error {
	d.mu.Lock()
	src := d.src
	d.mu.Unlock()
	if src == nil {
		return ErrNoTrack
	}
	if err := d.eng.Resume(ctx); err != nil {
		return fmt.Errorf("resume engine: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src != src {
		return ErrNoTrack
	}
	src.Play()
	d.state = Playing
	return nil
}

// Pause halts playback and keeps the position.
func (d *Deck) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	d.src.Pause()
	if d.state == Playing {
		d.state = Paused
	}
	return nil
}

// TogglePlay plays when not playing and pauses otherwise.
func (d *Deck) TogglePlay(ctx context.Context) error {
	if d.State() == Playing {
		return d.Pause()
	}
	return d.Play(ctx)
}

// State returns the transport state.
func (d *Deck) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Seek moves the play head, clamped to the track.
func (d *Deck) Seek(seconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	d.src.Seek(seconds)
	return nil
}

// Position returns the play head in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return 0
	}
	return d.src.Position()
}

// Duration returns the track length in seconds.
func (d *Deck) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return 0
	}
	return d.src.Duration()
}

// --- Cue points ---

// Cue sets the cue point at the play head when none is set, otherwise seeks
// to it. The play state is left alone. The cue point is hot cue 0.
func (d *Deck) Cue() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.hot[0] == nil {
		p := d.src.Position()
		d.hot[0] = &p
		return nil
	}
	d.src.Seek(*d.hot[0])
	return nil
}

// SetHotCue stores the play head in slot i.
func (d *Deck) SetHotCue(i int) error {
	if i < 0 || i >= HotCues {
		return ErrBadHotCue
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	p := d.src.Position()
	d.hot[i] = &p
	return nil
}

// JumpHotCue seeks to slot i.
func (d *Deck) JumpHotCue(i int) error {
	if i < 0 || i >= HotCues {
		return ErrBadHotCue
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.hot[i] == nil {
		return ErrEmptyCue
	}
	d.src.Seek(*d.hot[i])
	return nil
}

// ClearHotCue empties slot i.
func (d *Deck) ClearHotCue(i int) error {
	if i < 0 || i >= HotCues {
		return ErrBadHotCue
	}
	d.mu.Lock()
	d.hot[i] = nil
	d.mu.Unlock()
	return nil
}

// HotCue returns slot i, or false when empty.
func (d *Deck) HotCue(i int) (float64, bool) {
	if i < 0 || i >= HotCues {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hot[i] == nil {
		return 0, false
	}
	return *d.hot[i], true
}

// --- Scrub ---

// ScrubStart begins a jog-wheel drag: playback pauses until ScrubEnd.
func (d *Deck) ScrubStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.scrubbing {
		return nil
	}
	d.scrubbing = true
	d.wasPlay = d.state == Playing
	d.src.Pause()
	return nil
}

// Scrub nudges the play head by deltaAngle degrees of wheel rotation.
func (d *Deck) Scrub(deltaAngle float64) error {
	if math.IsNaN(deltaAngle) || math.IsInf(deltaAngle, 0) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	dur := d.src.Duration()
	d.src.Seek(d.src.Position() + deltaAngle/360*dur*d.opts.ScrubFactor)
	return nil
}

// ScrubEnd releases the wheel and restores the play state from before the drag.
func (d *Deck) ScrubEnd() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if !d.scrubbing {
		return nil
	}
	d.scrubbing = false
	if d.wasPlay {
		d.src.Play()
	}
	return nil
}

// --- Close ---

// Close stops the loop checker and detaches the deck from its sync partners.
func (d *Deck) Close() {
	d.mu.Lock()
	checker := d.takeChecker()
	d.cancel()
	if d.src != nil {
		d.src.Pause()
	}
	leader := d.leader
	d.leader = nil
	followers := d.followers
	d.followers = make(map[*Deck]struct{})
	d.mu.Unlock()

	checker.Stop()
	if leader != nil {
		leader.removeFollower(d)
	}
	for f := range followers {
		f.dropLeader(d)
	}
}

// Snapshot returns the deck state for the UI.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Side:   d.side,
		State:  d.state,
		Rate:   d.rate,
		Loop:   copyLoop(d.loop),
		Synced: d.synced,
	}
	if d.track != nil {
		t := *d.track
		s.Track = &t
	}
	if d.src != nil {
		s.Position = d.src.Position()
		s.Duration = d.src.Duration()
	}
	for i, c := range d.hot {
		if c != nil {
			v := *c
			s.HotCues[i] = &v
		}
	}
	s.Cue = s.HotCues[0]
	if d.loadErr != nil {
		s.LoadErr = d.loadErr.Error()
	}
	return s
}

func copyLoop(l Loop) Loop {
	out := Loop{Active: l.Active, BeatLength: l.BeatLength}
	if l.In != nil {
		v := *l.In
		out.In = &v
	}
	if l.Out != nil {
		v := *l.Out
		out.Out = &v
	}
	return out
}

func clampRate(r float64) float64 {
	return dsp.Clamp(r, MinRate, MaxRate)
}
