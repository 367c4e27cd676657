package recorder

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pikomusic/studio/internal/graph"
)

type nopEngine struct{ err error }

func (e nopEngine) Resume(context.Context) error { return e.err }

// gateEngine blocks each Resume until release is closed.
type gateEngine struct {
	entered chan struct{}
	release chan struct{}
}

func (e *gateEngine) Resume(ctx context.Context) error {
	select {
	case e.entered <- struct{}{}:
	default:
	}
	select {
	case <-e.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sine(frames, sampleRate int) []float32 {
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		out[i*2], out[i*2+1] = v, v
	}
	return out
}

// waitListeners blocks until the capture goroutine is attached to tap.
func waitListeners(t *testing.T, tap *graph.Tap, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for tap.ListenerCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("tap listeners = %d, want %d", tap.ListenerCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

// --- Formats ---

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name  string
		prefs []string
		rate  int
		want  string
	}{
		{"opus rate prefers ogg", DefaultFormats, 48000, MimeOggOpus},
		{"cd rate falls back to wav", DefaultFormats, 44100, MimeWAV},
		{"raw opus", []string{MimeWebmOpus, MimeOpus}, 24000, MimeOpus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Negotiate(tt.prefs, tt.rate)
			if err != nil {
				t.Fatal(err)
			}
			if f.MimeType != tt.want {
				t.Errorf("Negotiate = %s, want %s", f.MimeType, tt.want)
			}
		})
	}
	if _, err := Negotiate([]string{MimeWebmOpus}, 48000); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Negotiate(webm only) = %v, want ErrUnsupported", err)
	}
}

func TestFilename(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 7, 59, 0, time.UTC)
	if got := Filename(Mix, at, "wav"); got != "piko-mix-2026-03-05-1407.wav" {
		t.Errorf("Filename(Mix) = %q", got)
	}
	if got := Filename(VoiceTagKind, at, "ogg"); got != "piko-voice-tag-2026-03-05-1407.ogg" {
		t.Errorf("Filename(VoiceTag) = %q", got)
	}
}

func TestFloatsToPCM16Clamps(t *testing.T) {
	b := floatsToPCM16([]float32{2, -2, 0})
	want := []byte{0xff, 0x7f, 0x01, 0x80, 0, 0}
	if !bytes.Equal(b, want) {
		t.Errorf("floatsToPCM16 = %x, want %x", b, want)
	}
}

// --- Lifecycle ---

func TestRecordWAV(t *testing.T) {
	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)}
	r := New(Mix, tap, nopEngine{}, 44100, Options{Now: clock.Now})

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.State() != Recording {
		t.Fatalf("State = %v, want recording", r.State())
	}
	waitListeners(t, tap, 1)
	block := sine(441, 44100)
	for i := 0; i < 10; i++ {
		tap.Publish(block)
	}
	clock.add(90 * time.Second)

	res, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.MimeType != MimeWAV {
		t.Errorf("MimeType = %s, want %s", res.MimeType, MimeWAV)
	}
	if res.Filename != "piko-mix-2026-01-02-0305.wav" {
		t.Errorf("Filename = %s", res.Filename)
	}
	if res.Duration != 90*time.Second {
		t.Errorf("Duration = %v, want 90s", res.Duration)
	}
	if res.Chunks != 10 {
		t.Errorf("Chunks = %d, want 10", res.Chunks)
	}
	if !bytes.HasPrefix(res.Data, []byte("RIFF")) {
		t.Errorf("data does not start with RIFF: %q", res.Data[:min(4, len(res.Data))])
	}
	// 44-byte header plus 10 blocks of 441 stereo 16-bit frames.
	if want := 44 + 10*441*4; len(res.Data) != want {
		t.Errorf("len(Data) = %d, want %d", len(res.Data), want)
	}
	if tap.ListenerCount() != 0 {
		t.Error("listener still attached after Stop")
	}
	st := r.Status()
	if st.State != Stopped || st.Result == nil || st.Duration != 90 {
		t.Errorf("Status = %+v", st)
	}
}

func TestRecordOggOpus(t *testing.T) {
	tap := graph.NewRouter(48000).Tap(graph.TapMaster)
	r := New(Mix, tap, nopEngine{}, 48000, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitListeners(t, tap, 1)
	tap.Publish(sine(4800, 48000)) // 100ms, five opus frames
	res, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.MimeType != MimeOggOpus {
		t.Errorf("MimeType = %s, want %s", res.MimeType, MimeOggOpus)
	}
	if res.Chunks != 5 {
		t.Errorf("Chunks = %d, want 5", res.Chunks)
	}
	if !bytes.HasPrefix(res.Data, []byte("OggS")) {
		t.Error("data is not an Ogg stream")
	}
}

func TestRecordOggOpusKeepsTail(t *testing.T) {
	tap := graph.NewRouter(48000).Tap(graph.TapMaster)
	r := New(Mix, tap, nopEngine{}, 48000, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitListeners(t, tap, 1)
	tap.Publish(sine(5000, 48000)) // five full frames and 200 leftover frames
	res, err := r.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 6 {
		t.Errorf("Chunks = %d, want 6", res.Chunks)
	}
}

func TestOpusFlush(t *testing.T) {
	e, err := newOpusEncoder(48000)
	if err != nil {
		t.Fatal(err)
	}
	out, err := e.Encode(sine(100, 48000))
	if err != nil || len(out) != 0 {
		t.Fatalf("Encode partial frame = %d packets, %v; want 0, nil", len(out), err)
	}
	tail, err := e.Flush()
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 1 || len(tail[0]) == 0 {
		t.Errorf("Flush = %d packets, want 1", len(tail))
	}
	if tail, _ := e.Flush(); len(tail) != 0 {
		t.Errorf("second Flush = %d packets, want 0", len(tail))
	}
}

func TestStartErrors(t *testing.T) {
	r := New(Mix, nil, nopEngine{}, 44100, Options{})
	if err := r.Start(context.Background()); !errors.Is(err, ErrNoTap) {
		t.Errorf("Start without tap = %v, want ErrNoTap", err)
	}
	if r.Status().Err == "" {
		t.Error("Status.Err empty after failed start")
	}

	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	r = New(Mix, tap, nopEngine{}, 44100, Options{Formats: []string{MimeWebmOpus}})
	if err := r.Start(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Start with no format = %v, want ErrUnsupported", err)
	}

	r = New(Mix, tap, nopEngine{err: errors.New("denied")}, 44100, Options{})
	if err := r.Start(context.Background()); err == nil {
		t.Error("Start succeeded with failing engine")
	}
	if r.State() != Idle {
		t.Errorf("State = %v, want idle", r.State())
	}
}

func TestDoubleStartAndIdleStop(t *testing.T) {
	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	r := New(Mix, tap, nopEngine{}, 44100, Options{})
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop while idle = %v, want ErrNotRecording", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start = %v, want ErrAlreadyRecording", err)
	}
	if _, err := r.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestCancelFlushes(t *testing.T) {
	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	r := New(Mix, tap, nopEngine{}, 44100, Options{})
	finished := make(chan *Result, 1)
	r.OnFinish(func(res *Result) { finished <- res })

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitListeners(t, tap, 1)
	tap.Publish(sine(441, 44100))
	cancel()

	select {
	case res := <-finished:
		if res.Chunks != 1 {
			t.Errorf("Chunks = %d, want 1", res.Chunks)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled capture never finished")
	}
	if r.State() != Stopped {
		t.Errorf("State = %v, want stopped", r.State())
	}
}

func TestClear(t *testing.T) {
	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	r := New(Mix, tap, nopEngine{}, 44100, Options{})
	_ = r.Start(context.Background())
	_, _ = r.Stop()
	r.Clear()
	if r.State() != Idle {
		t.Errorf("State = %v, want idle", r.State())
	}
	if _, err := r.Result(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Result after Clear = %v, want ErrNoResult", err)
	}

	// Clearing mid-capture abandons it.
	_ = r.Start(context.Background())
	r.Clear()
	if tap.ListenerCount() != 0 {
		t.Error("listener still attached after Clear")
	}
	if _, err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop after Clear = %v, want ErrNotRecording", err)
	}
}

func TestClearDuringResume(t *testing.T) {
	tap := graph.NewRouter(44100).Tap(graph.TapMaster)
	eng := &gateEngine{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := New(Mix, tap, eng, 44100, Options{})

	first := make(chan error, 1)
	go func() { first <- r.Start(context.Background()) }()
	<-eng.entered

	r.Clear()
	if r.State() != Idle {
		t.Errorf("State after Clear = %v, want idle", r.State())
	}
	close(eng.release)

	if err := <-first; !errors.Is(err, ErrNotRecording) {
		t.Errorf("abandoned Start = %v, want ErrNotRecording", err)
	}
	if tap.ListenerCount() != 0 {
		t.Errorf("tap listeners after abandoned Start = %d, want 0", tap.ListenerCount())
	}

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if tap.ListenerCount() != 1 {
		t.Errorf("tap listeners = %d, want 1", tap.ListenerCount())
	}
	if r.State() != Recording {
		t.Errorf("State = %v, want recording", r.State())
	}
	if _, err := r.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if tap.ListenerCount() != 0 {
		t.Errorf("tap listeners after Stop = %d, want 0", tap.ListenerCount())
	}
}

// --- Voice tag ---

type fakeDecoder struct {
	buf  *graph.Buffer
	mime string
}

func (d *fakeDecoder) DecodeBytes(_ []byte, mime string) (*graph.Buffer, error) {
	d.mime = mime
	return d.buf, nil
}

func TestVoiceTagPlayback(t *testing.T) {
	router := graph.NewRouter(44100)
	dec := &fakeDecoder{buf: &graph.Buffer{Data: sine(100, 44100), SampleRate: 44100}}
	v := NewVoiceTag(router.Tap(graph.TapVoiceTag), nopEngine{}, router, dec, 44100, Options{})

	if err := v.PlayTag(context.Background()); !errors.Is(err, ErrNoTag) {
		t.Errorf("PlayTag before recording = %v, want ErrNoTag", err)
	}

	if err := v.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	res, err := v.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename[:15] != "piko-voice-tag-" {
		t.Errorf("Filename = %s", res.Filename)
	}

	ended := make(chan struct{})
	v.OnPlaybackEnded(func() { close(ended) })
	if err := v.PlayTag(context.Background()); err != nil {
		t.Fatal(err)
	}
	if dec.mime != MimeWAV {
		t.Errorf("decoded as %s, want %s", dec.mime, MimeWAV)
	}
	src := router.Connected(graph.PortVoiceTagPlayback)
	if src == nil {
		t.Fatal("playback port not connected")
	}
	if !v.Playing() {
		t.Error("Playing = false during playback")
	}

	block := make([]float32, 512)
	src.Process(block, 0)
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("playback never ended")
	}
	if router.Connected(graph.PortVoiceTagPlayback) != nil {
		t.Error("playback port still connected after the tag ended")
	}
}

func TestVoiceTagReplay(t *testing.T) {
	router := graph.NewRouter(44100)
	dec := &fakeDecoder{buf: &graph.Buffer{Data: sine(100, 44100), SampleRate: 44100}}
	v := NewVoiceTag(router.Tap(graph.TapVoiceTag), nopEngine{}, router, dec, 44100, Options{})
	_ = v.Start(context.Background())
	_, _ = v.Stop()

	_ = v.PlayTag(context.Background())
	first := router.Connected(graph.PortVoiceTagPlayback)
	if err := v.PlayTag(context.Background()); err != nil {
		t.Fatalf("second PlayTag = %v", err)
	}
	second := router.Connected(graph.PortVoiceTagPlayback)
	if second == nil || second == first {
		t.Error("second playback did not replace the first")
	}
}
