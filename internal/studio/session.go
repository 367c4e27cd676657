// Package studio owns one DJ studio session: the engine handle, the fixed
// graph and every component that plays through it. Components never reach
// for shared state; the session hands each one the handles it needs.
package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pikomusic/studio/internal/config"
	"github.com/pikomusic/studio/internal/deck"
	"github.com/pikomusic/studio/internal/device"
	"github.com/pikomusic/studio/internal/engine"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/media"
	"github.com/pikomusic/studio/internal/mixer"
	"github.com/pikomusic/studio/internal/recorder"
	"github.com/pikomusic/studio/internal/sequencer"
)

// Output selects what drives the render loop.
type Output int

const (
	// OutputSpeaker pulls audio through the default output device and falls
	// back to OutputPaced when no device can be opened.
	OutputSpeaker Output = iota
	// OutputPaced renders at real time without a device.
	OutputPaced
	// OutputOffline renders only when Engine.Advance is called.
	OutputOffline
)

// DefaultStatusInterval is the cadence of status events.
const DefaultStatusInterval = 50 * time.Millisecond

var (
	ErrClosed  = errors.New("session closed")
	ErrNoStore = errors.New("store not configured")
	ErrNoMic   = errors.New("microphone disabled")
)

// Options configures a session.
type Options struct {
	SampleRate         int
	Output             Output
	Microphone         bool
	OpenMic            device.OpenFunc // portaudio when nil
	FFmpeg             string
	Pads               int
	BPM                float64
	Lookahead          time.Duration
	Tick               time.Duration
	LoopCheck          time.Duration
	ScrubFactor        float64
	Mixer              mixer.Options
	LimiterThresholdDB float64
	MicMonitorGain     float64
	RecordFormats      []string
	KitDir             string
	StatusInterval     time.Duration
	Stores             Stores
	Now                func() time.Time
}

// OptionsFromConfig maps the runtime configuration onto session options.
func OptionsFromConfig(cfg config.Config) Options {
	out := OutputSpeaker
	if !cfg.OutputDevice {
		out = OutputPaced
	}
	return Options{
		SampleRate:  cfg.SampleRate,
		Output:      out,
		Microphone:  cfg.Microphone,
		FFmpeg:      cfg.FFmpegPath,
		Pads:        cfg.Pads,
		BPM:         cfg.DefaultBPM,
		Lookahead:   cfg.Lookahead,
		Tick:        cfg.Tick,
		LoopCheck:   cfg.LoopCheck,
		ScrubFactor: cfg.ScrubFactor,
		Mixer: mixer.Options{
			KillDB:      cfg.KillDB,
			FeedbackCap: cfg.FeedbackCap,
			DelayWet:    mixer.DefaultDelayWet,
		},
		LimiterThresholdDB: cfg.LimiterThresholdDB,
		MicMonitorGain:     cfg.MicMonitorGain,
		RecordFormats:      cfg.RecordFormats,
		KitDir:             cfg.KitDir,
	}
}

// Session is one studio. Exported components may be driven directly; the
// session methods cover the operations that span several of them.
type Session struct {
	ID string

	Engine    *engine.Engine
	Router    *graph.Router
	Surface   *mixer.Surface
	Decks     [2]*deck.Deck
	Pads      *graph.VoiceBus
	Sequencer *sequencer.Scheduler
	Mix       *recorder.Recorder
	VoiceTag  *recorder.VoiceTag
	Mic       *device.Microphone // nil when the microphone is disabled
	Loader    *media.Loader

	opts   Options
	stores Stores
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	closed   bool
	speaker  *device.Speaker
	status   *engine.Periodic
	padErrs  [graph.MaxPads]string
	kitFiles [graph.MaxPads]string
	subs     map[int]func(Event)
	nextSub  int
}

// New builds the graph and every component. The engine is left suspended;
// the first sound-producing action resumes it.
func New(opts Options) (*Session, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	if opts.Mixer == (mixer.Options{}) {
		opts.Mixer = mixer.DefaultOptions()
	}

	eng := engine.New(opts.SampleRate)
	sr := eng.SampleRate()

	r := graph.NewRouter(sr)
	if err := r.Build(); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	if err := eng.Init(r); err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	surface, err := mixer.NewSurface(r, opts.Mixer)
	if err != nil {
		return nil, fmt.Errorf("parameter surface: %w", err)
	}
	if opts.LimiterThresholdDB != 0 {
		surface.SetLimiterThreshold(opts.LimiterThresholdDB)
	}
	if opts.MicMonitorGain > 0 {
		r.MicMonitor().Value.Set(opts.MicMonitorGain)
	}

	dec := media.NewDecoder(sr)
	if opts.FFmpeg != "" {
		dec.FFmpeg = opts.FFmpeg
	}

	pads := graph.NewVoiceBus(sr)
	if err := r.Connect(graph.PortPads, pads); err != nil {
		return nil, fmt.Errorf("connect pads: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:      uuid.NewString(),
		Engine:  eng,
		Router:  r,
		Surface: surface,
		Pads:    pads,
		Loader:  media.NewLoader(dec),
		opts:    opts,
		stores:  opts.Stores,
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[int]func(Event)),
	}

	deckOpts := deck.Options{LoopCheck: opts.LoopCheck, ScrubFactor: opts.ScrubFactor}
	for _, side := range []graph.Side{graph.SideA, graph.SideB} {
		s.Decks[side] = deck.New(side, eng, r, deckOpts)
	}

	s.Sequencer = sequencer.New(eng, pads, eng, sequencer.Config{
		Pads:      opts.Pads,
		BPM:       opts.BPM,
		Lookahead: opts.Lookahead,
		Tick:      opts.Tick,
	})

	recOpts := recorder.Options{Formats: opts.RecordFormats, Now: opts.Now}
	s.Mix = recorder.New(recorder.Mix, r.Tap(graph.TapMaster), eng, sr, recOpts)
	s.VoiceTag = recorder.NewVoiceTag(r.Tap(graph.TapVoiceTag), eng, r, dec, sr, recOpts)

	if opts.Microphone {
		s.Mic = device.NewMicrophone(r, sr, opts.OpenMic)
	}

	s.hook()
	logger.Info("studio: session created",
		logger.String("session", s.ID),
		logger.Int("rate", sr),
		logger.Int("pads", s.Sequencer.Pads()))
	return s, nil
}

func (s *Session) hook() {
	s.Engine.OnStateChange(func(st engine.State) {
		s.emit(Event{Type: EventEngine, Data: st})
	})
	s.Sequencer.OnStep(func(step int) {
		s.emit(Event{Type: EventStep, Data: step})
	})
	s.Sequencer.OnRecordComplete(func() {
		s.emit(Event{Type: EventPatternRecorded, Data: s.PatternCode()})
	})
	s.Mix.OnFinish(func(res *recorder.Result) {
		s.emit(Event{Type: EventRecording, Data: RecordingEvent{Kind: KindMix, Result: res}})
		s.keep(KindMix, res)
	})
	s.VoiceTag.OnFinish(func(res *recorder.Result) {
		s.emit(Event{Type: EventRecording, Data: RecordingEvent{Kind: KindVoiceTag, Result: res}})
		s.keep(KindVoiceTag, res)
	})
	s.VoiceTag.OnPlaybackEnded(func() {
		s.emit(Event{Type: EventVoiceTagEnded})
	})
}

// Start drives the render loop, loads the sample kit and begins status
// events. It may be called once.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true

	switch s.opts.Output {
	case OutputSpeaker:
		sp, err := device.OpenSpeaker(s.Engine)
		if err != nil {
			logger.Warn("studio: no output device, pacing render loop", logger.ErrorField(err))
			s.pace()
		} else {
			s.speaker = sp
		}
	case OutputPaced:
		s.pace()
	}
	s.status = engine.Every(s.ctx, s.opts.StatusInterval, func(context.Context) {
		if s.subscribers() > 0 {
			s.emit(Event{Type: EventStatus, Data: s.Status()})
		}
	})
	s.mu.Unlock()

	if dir := s.opts.KitDir; dir != "" {
		if err := s.LoadKit(s.ctx, dir); err != nil {
			logger.Warn("studio: kit not loaded", logger.String("dir", dir), logger.ErrorField(err))
		} else {
			s.watchKit(dir)
		}
	}
	logger.Info("studio: session started", logger.String("session", s.ID))
	return nil
}

func (s *Session) pace() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Engine.Run(s.ctx)
	}()
}

// Resume asks the engine to start. Every sound-producing operation already
// does this; the UI may call it on its first gesture.
func (s *Session) Resume(ctx context.Context) error {
	return s.Engine.Resume(ctx)
}

// Deck returns side's transport.
func (s *Session) Deck(side graph.Side) (*deck.Deck, error) {
	if side != graph.SideA && side != graph.SideB {
		return nil, mixer.ErrBadSide
	}
	return s.Decks[side], nil
}

// LoadTrack decodes t.Src and assigns it to side. A decode failure flags
// only that deck.
func (s *Session) LoadTrack(ctx context.Context, side graph.Side, t deck.Track) error {
	d, err := s.Deck(side)
	if err != nil {
		return err
	}
	buf, err := s.Loader.Load(ctx, t.Src)
	if err != nil {
		d.FailLoad(t, err)
		logger.Warn("studio: track failed to load",
			logger.String("deck", side.String()),
			logger.String("src", t.Src),
			logger.ErrorField(err))
		return err
	}
	if err := d.Load(t, buf, s.Engine.SampleRate()); err != nil {
		return err
	}
	logger.Info("studio: track loaded",
		logger.String("deck", side.String()),
		logger.String("title", t.Title),
		logger.Float64("duration", buf.Duration()))
	return nil
}

// Sync matches side's rate to the other deck.
func (s *Session) Sync(side graph.Side) error {
	d, err := s.Deck(side)
	if err != nil {
		return err
	}
	other := s.Decks[1-side]
	return d.SyncTo(other)
}

// EnableMic opens the microphone for the life of the session. A refused
// device leaves the session running with the mic in the denied state.
func (s *Session) EnableMic() error {
	if s.Mic == nil {
		return ErrNoMic
	}
	return s.Mic.Enable(s.ctx)
}

// StartRecording starts the mix recorder. The capture outlives ctx, which
// only bounds the engine resume; closing the session flushes it.
func (s *Session) StartRecording(ctx context.Context) error {
	if err := s.Engine.Resume(ctx); err != nil {
		return err
	}
	return s.Mix.Start(s.ctx)
}

// StartVoiceTag starts the voice-tag recorder. The microphone must be on for
// the tag to capture anything.
func (s *Session) StartVoiceTag(ctx context.Context) error {
	if err := s.Engine.Resume(ctx); err != nil {
		return err
	}
	return s.VoiceTag.Start(s.ctx)
}

// DisableMic closes the microphone.
func (s *Session) DisableMic() {
	if s.Mic != nil {
		s.Mic.Disable()
	}
}

// Close stops every periodic task and releases the devices. It is safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	status := s.status
	s.status = nil
	sp := s.speaker
	s.speaker = nil
	s.mu.Unlock()

	status.Stop()
	s.Sequencer.Close()
	for _, d := range s.Decks {
		d.Close()
	}
	s.DisableMic()
	// Captures in progress are flushed, not discarded.
	_, _ = s.Mix.Stop()
	_, _ = s.VoiceTag.Stop()
	s.Pads.Clear()

	s.cancel()
	s.wg.Wait()

	if err := sp.Close(); err != nil {
		logger.Warn("studio: close output device", logger.ErrorField(err))
	}
	s.Router.Teardown()
	s.Engine.Close()
	logger.Info("studio: session closed", logger.String("session", s.ID))
}
