package engine

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type constRenderer struct {
	value  float32
	starts []int64
}

func (c *constRenderer) Render(dst []float32, frame int64) {
	c.starts = append(c.starts, frame)
	for i := range dst {
		dst[i] = c.value
	}
}

// --- Lifecycle ---

func TestNewEngineDefaults(t *testing.T) {
	e := New(0)
	if e.SampleRate() != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", e.SampleRate(), DefaultSampleRate)
	}
	if e.BlockFrames() != BlockFrames {
		t.Errorf("BlockFrames = %d, want %d", e.BlockFrames(), BlockFrames)
	}
	if e.State() != StateUninitialized {
		t.Errorf("State = %v, want uninitialized", e.State())
	}
}

func TestResumeBeforeInit(t *testing.T) {
	e := New(0)
	if err := e.Resume(context.Background()); err != ErrNotInitialized {
		t.Errorf("Resume before Init = %v, want ErrNotInitialized", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	e := New(0)
	var seen []State
	e.OnStateChange(func(s State) { seen = append(seen, s) })

	if err := e.Init(&constRenderer{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if e.State() != StateSuspended {
		t.Fatalf("State after Init = %v, want suspended", e.State())
	}
	if err := e.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := e.Resume(context.Background()); err != nil {
		t.Fatalf("second Resume: %v", err)
	}
	e.Close()
	if err := e.Resume(context.Background()); err != ErrClosed {
		t.Errorf("Resume after Close = %v, want ErrClosed", err)
	}

	want := []State{StateSuspended, StateRunning, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestResumeConcurrentCallers(t *testing.T) {
	e := New(0)
	e.Init(&constRenderer{})
	ready := make(chan struct{})
	e.SetDeviceReady(ready)

	var running atomic.Int32
	e.OnStateChange(func(s State) {
		if s == StateRunning {
			running.Add(1)
		}
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- e.Resume(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(ready)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Resume returned %v", err)
		}
	}
	if running.Load() != 1 {
		t.Errorf("running transitions = %d, want 1", running.Load())
	}
}

func TestResumeHonoursContext(t *testing.T) {
	e := New(0)
	e.Init(&constRenderer{})
	e.SetDeviceReady(make(chan struct{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := e.Resume(ctx); err != context.DeadlineExceeded {
		t.Errorf("Resume = %v, want deadline exceeded", err)
	}
	if e.State() != StateSuspended {
		t.Errorf("State = %v, want suspended", e.State())
	}
}

// --- Clock ---

func TestClockFrozenWhileSuspended(t *testing.T) {
	e := New(0)
	e.Init(&constRenderer{value: 1})

	block := make([]float32, 16)
	for i := range block {
		block[i] = 5
	}
	e.Render(block)
	if e.CurrentFrame() != 0 {
		t.Errorf("CurrentFrame = %d, want 0 while suspended", e.CurrentFrame())
	}
	for i, v := range block {
		if v != 0 {
			t.Fatalf("block[%d] = %v, want silence while suspended", i, v)
		}
	}
}

func TestAdvanceMovesClock(t *testing.T) {
	e := New(48000)
	r := &constRenderer{}
	e.Init(r)
	e.Resume(context.Background())

	e.Advance(48000)
	if got := e.CurrentTime(); math.Abs(got-1.0) > 1e-12 {
		t.Errorf("CurrentTime = %v, want 1.0", got)
	}
	if len(r.starts) != 48000/BlockFrames {
		t.Errorf("render calls = %d, want %d", len(r.starts), 48000/BlockFrames)
	}
	for i, s := range r.starts {
		if s != int64(i*BlockFrames) {
			t.Errorf("block %d started at %d, want %d", i, s, i*BlockFrames)
		}
	}
}

func TestStreamReaderEncodesFloat32(t *testing.T) {
	e := New(0)
	e.Init(&constRenderer{value: 0.5})
	e.Resume(context.Background())

	buf := make([]byte, 4*Channels*10)
	n, err := e.Reader().Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(buf) {
		t.Errorf("Read n = %d, want %d", n, len(buf))
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8]))
	if got != 0.5 {
		t.Errorf("sample[1] = %v, want 0.5", got)
	}
	if e.CurrentFrame() != 10 {
		t.Errorf("CurrentFrame = %d, want 10", e.CurrentFrame())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e := New(0)
	e.Init(&constRenderer{})
	e.Resume(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
	if e.CurrentFrame() == 0 {
		t.Error("paced Run rendered no frames")
	}
}

// --- Periodic ---

func TestPeriodicRunsAndStops(t *testing.T) {
	var calls atomic.Int32
	p := Every(context.Background(), 5*time.Millisecond, func(context.Context) {
		calls.Add(1)
	})
	time.Sleep(40 * time.Millisecond)
	p.Stop()
	after := calls.Load()
	if after == 0 {
		t.Fatal("periodic task never ran")
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("task ran after Stop: %d -> %d", after, calls.Load())
	}
	p.Stop()
}

func TestPeriodicStopNil(t *testing.T) {
	var p *Periodic
	p.Stop()
}

func TestPeriodicParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Every(ctx, time.Millisecond, func(context.Context) {})
	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not exit on parent cancel")
	}
}
