// Package sequencer drives the beat maker. A cheap periodic tick schedules
// every step that falls inside a short lookahead window at its exact time on
// the audio clock, so tick jitter never reaches the sound.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/engine"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/pattern"
)

// Tempo range and scheduling defaults.
const (
	MinBPM           = 60.0
	MaxBPM           = 200.0
	DefaultBPM       = 120.0
	DefaultLookahead = 100 * time.Millisecond
	DefaultTick      = 25 * time.Millisecond
	StepsPerBeat     = 4
	RecordBars       = 4
	RecordSteps      = RecordBars * pattern.Steps
)

var (
	ErrBadPad = errors.New("pad out of range")
	ErrClosed = errors.New("sequencer closed")
)

// Clock is the audio clock the schedule is computed against.
type Clock interface {
	CurrentTime() float64
}

// Trigger plays a pad's one-shot at an exact time on the audio clock.
type Trigger interface {
	Trigger(pad int, when float64, gain float64) error
}

// Resumer starts a suspended audio engine.
type Resumer interface {
	Resume(ctx context.Context) error
}

// Config holds scheduler parameters.
type Config struct {
	Pads      int
	BPM       float64
	Lookahead time.Duration
	Tick      time.Duration
}

// Status is the scheduler state exposed to the UI.
type Status struct {
	Running       bool    `json:"running"`
	BPM           float64 `json:"bpm"`
	CurrentStep   int     `json:"currentStep"` // -1 while stopped
	Recording     bool    `json:"recording"`
	RecordedSteps int     `json:"recordedSteps"`
	Mute          []bool  `json:"mute"`
	Solo          []bool  `json:"solo"`
}

// StepDuration is the length of one sixteenth note at bpm.
func StepDuration(bpm float64) float64 {
	return 60 / (bpm * StepsPerBeat)
}

// Scheduler is the lookahead step sequencer.
type Scheduler struct {
	clock Clock
	out   Trigger
	eng   Resumer
	cfg   Config

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pat       pattern.Pattern
	bpm       float64
	running   bool
	gen       int
	nextTime  float64
	nextStep  int
	current   int
	mute      [graph.MaxPads]bool
	solo      [graph.MaxPads]bool
	recording bool
	recorded  int
	ticker    *engine.Periodic
	timers    map[*time.Timer]struct{}

	onStep   func(step int)
	onRecord func()
}

// New creates a stopped scheduler with an empty pattern.
func New(clock Clock, out Trigger, eng Resumer, cfg Config) *Scheduler {
	if cfg.Pads <= 0 || cfg.Pads > graph.MaxPads {
		cfg.Pads = pattern.DefaultPads
	}
	if cfg.BPM == 0 {
		cfg.BPM = DefaultBPM
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		out:     out,
		eng:     eng,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		pat:     pattern.New(cfg.Pads),
		bpm:     dsp.Clamp(cfg.BPM, MinBPM, MaxBPM),
		current: -1,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// OnStep registers the UI highlight callback. It fires when a step becomes
// audible, not when it is scheduled.
func (s *Scheduler) OnStep(fn func(step int)) {
	s.mu.Lock()
	s.onStep = fn
	s.mu.Unlock()
}

// OnRecordComplete registers the callback fired, on its own goroutine, when
// a recording pass ends.
func (s *Scheduler) OnRecordComplete(fn func()) {
	s.mu.Lock()
	s.onRecord = fn
	s.mu.Unlock()
}

// Pads returns the pad count.
func (s *Scheduler) Pads() int { return s.cfg.Pads }

// Start resumes the engine and begins scheduling from step 0 at the current
// audio time. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	if err := s.eng.Resume(ctx); err != nil {
		return fmt.Errorf("resume engine: %w", err)
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.gen++
	s.nextTime = s.clock.CurrentTime()
	s.nextStep = 0
	s.ticker = engine.Every(s.ctx, s.cfg.Tick, func(context.Context) { s.Tick() })
	s.mu.Unlock()

	s.Tick()
	return nil
}

// Stop halts scheduling and cancels pending highlight timers. Voices already
// handed to the output keep their times. A recording pass is abandoned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	ticker := s.stopLocked()
	s.mu.Unlock()
	ticker.Stop()
}

func (s *Scheduler) stopLocked() *engine.Periodic {
	s.running = false
	s.gen++
	s.current = -1
	s.recording = false
	s.recorded = 0
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
	t := s.ticker
	s.ticker = nil
	return t
}

// Close stops the scheduler for good.
func (s *Scheduler) Close() {
	s.Stop()
	s.cancel()
}

// Running reports whether steps are being scheduled.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Tick schedules every step due before the lookahead horizon. The periodic
// task calls it; tests call it directly against a manual clock.
func (s *Scheduler) Tick() {
	now := s.clock.CurrentTime()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	horizon := now + s.cfg.Lookahead.Seconds()
	finished := false
	for s.nextTime < horizon {
		s.scheduleLocked(s.nextStep, s.nextTime)
		s.highlightLocked(s.nextStep, s.nextTime-now)
		s.nextTime += StepDuration(s.bpm)
		s.nextStep = (s.nextStep + 1) % pattern.Steps
		if s.recording {
			s.recorded++
			if s.recorded >= RecordSteps {
				s.recording = false
				finished = true
			}
		}
	}
	cb := s.onRecord
	s.mu.Unlock()

	if finished && cb != nil {
		go cb()
	}
}

func (s *Scheduler) scheduleLocked(step int, when float64) {
	for _, pad := range s.pat.Active(step) {
		if !s.audibleLocked(pad) {
			continue
		}
		// A pad without a sample is flagged at load time; the rest still play.
		_ = s.out.Trigger(pad, when, 1)
	}
}

func (s *Scheduler) highlightLocked(step int, delay float64) {
	gen := s.gen
	var t *time.Timer
	t = time.AfterFunc(time.Duration(max(delay, 0)*float64(time.Second)), func() {
		s.mu.Lock()
		delete(s.timers, t)
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.current = step
		cb := s.onStep
		s.mu.Unlock()
		if cb != nil {
			cb(step)
		}
	})
	s.timers[t] = struct{}{}
}

func (s *Scheduler) audibleLocked(pad int) bool {
	if pad < 0 || pad >= s.cfg.Pads {
		return false
	}
	for i := 0; i < s.cfg.Pads; i++ {
		if s.solo[i] {
			return s.solo[pad]
		}
	}
	return !s.mute[pad]
}

// NextStepTime returns the audio time of the next step to schedule.
func (s *Scheduler) NextStepTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextTime
}

// CurrentStep returns the step last made audible, or -1.
func (s *Scheduler) CurrentStep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetBPM changes the tempo in [60,200]. Steps already scheduled keep their
// times; the next step spacing uses the new tempo.
func (s *Scheduler) SetBPM(bpm float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bpm = dsp.Clamp(bpm, MinBPM, MaxBPM)
	return s.bpm
}

// BPM returns the tempo.
func (s *Scheduler) BPM() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bpm
}
