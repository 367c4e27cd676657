package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultSampleRate = 48000
	Channels          = 2
	BlockDuration     = 20 * time.Millisecond
	BlockFrames       = 960 // frames per channel per 20ms block at 48kHz
)

var (
	ErrClosed         = errors.New("engine closed")
	ErrNotInitialized = errors.New("engine not initialized")
)

// State is the platform consent state of the audio subsystem.
type State int32

const (
	StateUninitialized State = iota
	StateSuspended
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSuspended:
		return "suspended"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Renderer fills dst with interleaved stereo audio for the block that starts
// at the given absolute frame on the engine clock.
type Renderer interface {
	Render(dst []float32, frame int64)
}

// Engine is the audio subsystem handle shared by every component of a session.
// The clock only advances while the engine is running.
type Engine struct {
	sampleRate  int
	blockFrames int

	mu       sync.Mutex
	state    State
	renderer Renderer
	ready    <-chan struct{}
	hooks    []func(State)

	renderMu sync.Mutex
	frames   atomic.Int64
	scratch  []float32
}

// New creates an uninitialized engine. A zero sampleRate selects DefaultSampleRate.
func New(sampleRate int) *Engine {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Engine{
		sampleRate:  sampleRate,
		blockFrames: sampleRate * int(BlockDuration/time.Millisecond) / 1000,
	}
}

// SampleRate returns the engine's sample rate in Hz.
func (e *Engine) SampleRate() int { return e.sampleRate }

// BlockFrames returns the number of frames rendered per paced block.
func (e *Engine) BlockFrames() int { return e.blockFrames }

// Init attaches the renderer and moves the engine to the suspended state.
// Construction never requires the platform to have granted playback.
func (e *Engine) Init(r Renderer) error {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.renderer = r
	changed := e.state == StateUninitialized
	if changed {
		e.state = StateSuspended
	}
	hooks := e.hooks
	e.mu.Unlock()

	if changed {
		notify(hooks, StateSuspended)
	}
	return nil
}

// SetDeviceReady registers a channel that Resume waits on before reporting
// the engine as running (e.g. the speaker's ready channel).
func (e *Engine) SetDeviceReady(ready <-chan struct{}) {
	e.mu.Lock()
	e.ready = ready
	e.mu.Unlock()
}

// OnStateChange registers fn to be called after every state transition.
func (e *Engine) OnStateChange(fn func(State)) {
	e.mu.Lock()
	e.hooks = append(e.hooks, fn)
	e.mu.Unlock()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Resume requests the running state. It is idempotent and may be called
// from several goroutines at once; every caller returns once the engine runs.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateRunning:
		e.mu.Unlock()
		return nil
	case StateClosed:
		e.mu.Unlock()
		return ErrClosed
	case StateUninitialized:
		e.mu.Unlock()
		return ErrNotInitialized
	}
	ready := e.ready
	e.mu.Unlock()

	if ready != nil {
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	if e.state != StateSuspended {
		st := e.state
		e.mu.Unlock()
		if st == StateRunning {
			return nil
		}
		return ErrClosed
	}
	e.state = StateRunning
	hooks := e.hooks
	e.mu.Unlock()

	notify(hooks, StateRunning)
	return nil
}

// Suspend freezes the clock. Rendering continues to produce silence.
func (e *Engine) Suspend() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateSuspended
	hooks := e.hooks
	e.mu.Unlock()
	notify(hooks, StateSuspended)
}

// Close moves the engine to its terminal state.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.state = StateClosed
	hooks := e.hooks
	e.mu.Unlock()
	notify(hooks, StateClosed)
}

// CurrentTime returns the audio clock in seconds.
func (e *Engine) CurrentTime() float64 {
	return float64(e.frames.Load()) / float64(e.sampleRate)
}

// CurrentFrame returns the audio clock in frames.
func (e *Engine) CurrentFrame() int64 {
	return e.frames.Load()
}

// Render fills dst with the next block of audio. When the engine is not
// running dst is silenced and the clock does not move.
func (e *Engine) Render(dst []float32) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()

	e.mu.Lock()
	running := e.state == StateRunning
	r := e.renderer
	e.mu.Unlock()

	if !running || r == nil {
		clear(dst)
		return
	}
	start := e.frames.Load()
	r.Render(dst, start)
	e.frames.Add(int64(len(dst) / Channels))
}

// Advance renders frames in block-sized chunks and discards the output.
// It drives the clock in offline sessions and tests.
func (e *Engine) Advance(frames int) {
	for frames > 0 {
		n := min(frames, e.blockFrames)
		if cap(e.scratch) < n*Channels {
			e.scratch = make([]float32, e.blockFrames*Channels)
		}
		e.Render(e.scratch[:n*Channels])
		frames -= n
	}
}

// Run paces rendering at real-time rate when no output device pulls audio.
// Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(BlockDuration)
	defer ticker.Stop()

	block := make([]float32, e.blockFrames*Channels)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if e.State() == StateClosed {
			return
		}
		e.Render(block)
	}
}

func notify(hooks []func(State), s State) {
	for _, fn := range hooks {
		fn(s)
	}
}
