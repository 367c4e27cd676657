// Package recorder captures a graph tap into a downloadable container. One
// recorder owns at most one capture at a time.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

// State is the recorder lifecycle.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Kind selects the download name prefix.
type Kind int

const (
	Mix Kind = iota
	VoiceTagKind
)

func (k Kind) prefix() string {
	if k == VoiceTagKind {
		return "piko-voice-tag"
	}
	return "piko-mix"
}

// filenameLayout renders YYYY-MM-DD-HHmm.
const filenameLayout = "2006-01-02-1504"

// Filename returns the download name for a recording finished at t.
func Filename(k Kind, t time.Time, ext string) string {
	return fmt.Sprintf("%s-%s.%s", k.prefix(), t.Format(filenameLayout), ext)
}

var (
	ErrNoTap            = errors.New("no tap connected")
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrNoResult         = errors.New("no recording available")
)

// Resumer starts a suspended audio engine.
type Resumer interface {
	Resume(ctx context.Context) error
}

// Result is a finished recording.
type Result struct {
	ID       string        `json:"id"`
	Data     []byte        `json:"-"`
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Duration time.Duration `json:"duration"`
	Size     int           `json:"size"`
	Chunks   int           `json:"chunks"`
}

// Status is the recorder state for the transport UI.
type Status struct {
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Duration  float64   `json:"duration"` // seconds
	Chunks    int       `json:"chunks"`
	MimeType  string    `json:"mimeType,omitempty"`
	Err       string    `json:"error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
}

// Options tunes a recorder.
type Options struct {
	Formats []string         // negotiation order; DefaultFormats when empty
	Now     func() time.Time // wall clock; time.Now when nil
}

type capture struct {
	listener *graph.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	enc      encoder
	format   Format
	started  time.Time

	mu     sync.Mutex
	chunks [][]byte
	err    error
}

// Recorder wraps one graph tap.
type Recorder struct {
	kind       Kind
	tap        *graph.Tap
	eng        Resumer
	sampleRate int
	opts       Options

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped by Clear; a Start that sees it change gives up
	cur      *capture
	result   *Result
	lastErr  error
	duration time.Duration
	onFinish func(*Result)
}

// New creates an idle recorder on tap. A nil tap is allowed; Start then
// reports ErrNoTap.
func New(kind Kind, tap *graph.Tap, eng Resumer, sampleRate int, opts Options) *Recorder {
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{kind: kind, tap: tap, eng: eng, sampleRate: sampleRate, opts: opts}
}

// OnFinish registers a callback that receives every finished recording.
func (r *Recorder) OnFinish(fn func(*Result)) {
	r.mu.Lock()
	r.onFinish = fn
	r.mu.Unlock()
}

// Format returns the container Start would use.
func (r *Recorder) Format() (Format, error) {
	return Negotiate(r.opts.Formats, r.sampleRate)
}

// Start begins capturing. Cancelling ctx ends the capture and keeps what was
// recorded, as Stop would.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Recording {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	if r.tap == nil {
		r.lastErr = ErrNoTap
		r.mu.Unlock()
		return ErrNoTap
	}
	format, err := Negotiate(r.opts.Formats, r.sampleRate)
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()
		logger.Warn("recorder: format negotiation failed", logger.String("kind", r.kind.prefix()), logger.ErrorField(err))
		return err
	}
	enc, err := newEncoder(format, r.sampleRate)
	if err != nil {
		r.lastErr = err
		r.mu.Unlock()
		return err
	}
	// Claim the recorder before the resume so a second Start cannot race in.
	r.state = Recording
	r.lastErr = nil
	gen := r.gen
	r.mu.Unlock()

	if err := r.eng.Resume(ctx); err != nil {
		r.mu.Lock()
		if r.gen == gen {
			r.state = Idle
			if r.result != nil {
				r.state = Stopped
			}
			r.lastErr = err
		}
		r.mu.Unlock()
		return fmt.Errorf("resume engine: %w", err)
	}

	l := graph.NewListener()
	if err := r.tap.Connect(l); err != nil && !errors.Is(err, graph.ErrAlreadyConnected) {
		r.mu.Lock()
		if r.gen == gen {
			r.state = Idle
			r.lastErr = err
		}
		r.mu.Unlock()
		return err
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &capture{
		listener: l,
		cancel:   cancel,
		done:     make(chan struct{}),
		enc:      enc,
		format:   format,
		started:  r.opts.Now(),
	}

	r.mu.Lock()
	if r.gen != gen {
		// Cleared while the engine was resuming.
		r.mu.Unlock()
		_ = r.tap.Disconnect(l)
		cancel()
		return ErrNotRecording
	}
	r.cur = c
	r.result = nil
	r.mu.Unlock()

	go r.run(cctx, c)
	logger.Info("recorder: started", logger.String("kind", r.kind.prefix()), logger.String("format", format.MimeType))
	return nil
}

func (r *Recorder) run(ctx context.Context, c *capture) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			r.drain(c)
			// Cancelled from outside: flush rather than discard.
			go func() { _, _ = r.finish(c) }()
			return
		case <-c.listener.Done():
			r.drain(c)
			return
		case block := <-c.listener.C:
			r.encode(c, block)
		}
	}
}

func (r *Recorder) drain(c *capture) {
	for {
		select {
		case block := <-c.listener.C:
			r.encode(c, block)
		default:
			return
		}
	}
}

func (r *Recorder) encode(c *capture, block []float32) {
	chunks, err := c.enc.Encode(block)
	c.mu.Lock()
	c.chunks = append(c.chunks, chunks...)
	if err != nil && c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Stop ends the capture and assembles the result.
func (r *Recorder) Stop() (*Result, error) {
	r.mu.Lock()
	c := r.cur
	r.mu.Unlock()
	if c == nil {
		return nil, ErrNotRecording
	}
	return r.finish(c)
}

// finish runs once per capture, from Stop or from a cancelled context.
func (r *Recorder) finish(c *capture) (*Result, error) {
	r.mu.Lock()
	if r.cur != c {
		res := r.result
		r.mu.Unlock()
		if res == nil {
			return nil, ErrNotRecording
		}
		return res, nil
	}
	r.cur = nil
	r.mu.Unlock()

	_ = r.tap.Disconnect(c.listener)
	c.cancel()
	<-c.done

	ended := r.opts.Now()
	c.mu.Lock()
	chunks := c.chunks
	encErr := c.err
	c.mu.Unlock()

	tail, err := c.enc.Flush()
	chunks = append(chunks, tail...)
	if encErr == nil {
		encErr = err
	}

	var buf bytes.Buffer
	err = c.enc.Finish(chunks, &buf)
	if err == nil {
		err = encErr
	}

	res := &Result{
		ID:       uuid.NewString(),
		Data:     buf.Bytes(),
		MimeType: c.format.MimeType,
		Filename: Filename(r.kind, ended, c.format.Ext),
		Duration: ended.Sub(c.started),
		Size:     buf.Len(),
		Chunks:   len(chunks),
	}

	r.mu.Lock()
	r.state = Stopped
	r.result = res
	r.duration = res.Duration
	r.lastErr = err
	cb := r.onFinish
	r.mu.Unlock()

	if err != nil {
		logger.Warn("recorder: finalize failed", logger.String("kind", r.kind.prefix()), logger.ErrorField(err))
	} else {
		logger.Info("recorder: stopped",
			logger.String("kind", r.kind.prefix()),
			logger.String("file", res.Filename),
			logger.Int("bytes", res.Size))
	}
	if cb != nil {
		cb(res)
	}
	return res, err
}

// Clear releases the previous result and returns to Idle. A capture in
// progress is abandoned.
func (r *Recorder) Clear() {
	r.mu.Lock()
	c := r.cur
	r.cur = nil
	r.gen++
	r.state = Idle
	r.result = nil
	r.lastErr = nil
	r.duration = 0
	r.mu.Unlock()

	if c != nil {
		_ = r.tap.Disconnect(c.listener)
		c.cancel()
		<-c.done
	}
}

// Result returns the last finished recording.
func (r *Recorder) Result() (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return nil, ErrNoResult
	}
	return r.result, nil
}

// State returns the lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the state for the UI. Duration is wall-clock time spent
// recording.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{State: r.state, Result: r.result}
	if r.lastErr != nil {
		st.Err = r.lastErr.Error()
	}
	if c := r.cur; c != nil {
		st.StartedAt = c.started
		st.Duration = r.opts.Now().Sub(c.started).Seconds()
		st.MimeType = c.format.MimeType
		c.mu.Lock()
		st.Chunks = len(c.chunks)
		c.mu.Unlock()
		return st
	}
	st.Duration = r.duration.Seconds()
	if r.result != nil {
		st.MimeType = r.result.MimeType
		st.Chunks = r.result.Chunks
	}
	return st
}
