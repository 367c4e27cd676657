package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

// ErrPermission means the input device could not be opened. It is a
// recoverable state; the user may retry.
var ErrPermission = errors.New("microphone access denied")

// MicState is the microphone as the UI sees it.
type MicState int

const (
	MicOff MicState = iota
	MicOn
	MicDenied
)

func (s MicState) String() string {
	switch s {
	case MicOn:
		return "on"
	case MicDenied:
		return "denied"
	default:
		return "off"
	}
}

// MarshalText renders the state name in JSON.
func (s MicState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// micBlockFrames is the capture read size, 10ms at 48kHz.
const micBlockFrames = 480

// Capture is an open mono input stream.
type Capture interface {
	Read(dst []float32) error
	Close() error
}

// OpenFunc opens a capture stream at sampleRate delivering blocks of frames.
type OpenFunc func(sampleRate, frames int) (Capture, error)

// Ports is the part of the router the microphone feeds.
type Ports interface {
	Connect(port graph.Port, src graph.Source) error
	Disconnect(port graph.Port) error
}

// Microphone captures the default input into the mic port.
type Microphone struct {
	ports      Ports
	open       OpenFunc
	sampleRate int

	mu     sync.Mutex
	state  MicState
	input  *graph.LiveInput
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewMicrophone creates a microphone in the Off state. A nil open uses the
// default portaudio input.
func NewMicrophone(ports Ports, sampleRate int, open OpenFunc) *Microphone {
	if open == nil {
		open = OpenPortAudio
	}
	return &Microphone{ports: ports, open: open, sampleRate: sampleRate}
}

// Enable opens the input and connects it. A failure leaves the microphone
// in MicDenied and returns an error wrapping ErrPermission.
func (m *Microphone) Enable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == MicOn {
		return nil
	}
	c, err := m.open(m.sampleRate, micBlockFrames)
	if err != nil {
		m.state = MicDenied
		m.err = fmt.Errorf("%w: %v", ErrPermission, err)
		logger.Warn("mic: open failed", logger.ErrorField(err))
		return m.err
	}

	in := graph.NewLiveInput(m.sampleRate * 2) // one second of stereo
	if err := m.ports.Connect(graph.PortMic, in); err != nil && !errors.Is(err, graph.ErrAlreadyConnected) {
		_ = c.Close()
		return err
	}

	cctx, cancel := context.WithCancel(ctx)
	m.input = in
	m.cancel = cancel
	m.done = make(chan struct{})
	m.state = MicOn
	m.err = nil
	go m.capture(cctx, c, in, m.done)
	logger.Info("mic: enabled", logger.Int("rate", m.sampleRate))
	return nil
}

func (m *Microphone) capture(ctx context.Context, c Capture, in *graph.LiveInput, done chan struct{}) {
	defer close(done)
	defer c.Close()
	mono := make([]float32, micBlockFrames)
	stereo := make([]float32, micBlockFrames*2)
	for ctx.Err() == nil {
		if err := c.Read(mono); err != nil {
			if ctx.Err() == nil {
				logger.Warn("mic: read failed", logger.ErrorField(err))
				m.fail(err)
			}
			return
		}
		for i, v := range mono {
			stereo[i*2], stereo[i*2+1] = v, v
		}
		in.Write(stereo)
	}
}

// fail drops a device that stopped delivering audio.
func (m *Microphone) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != MicOn {
		return
	}
	_ = m.ports.Disconnect(graph.PortMic)
	m.state = MicDenied
	m.err = fmt.Errorf("%w: %v", ErrPermission, err)
	m.cancel()
}

// Disable disconnects and closes the input.
func (m *Microphone) Disable() {
	m.mu.Lock()
	if m.state != MicOn {
		m.state = MicOff
		m.mu.Unlock()
		return
	}
	_ = m.ports.Disconnect(graph.PortMic)
	m.state = MicOff
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

// State returns the microphone state and the last open error.
func (m *Microphone) State() (MicState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.err
}

// --- portaudio ---

type paCapture struct {
	stream *pa.Stream
	buf    []float32
}

// OpenPortAudio opens the default input device with one channel.
func OpenPortAudio(sampleRate, frames int) (Capture, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	c := &paCapture{buf: make([]float32, frames)}
	stream, err := pa.OpenDefaultStream(1, 0, float64(sampleRate), frames, c.buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("open input: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("start input: %w", err)
	}
	c.stream = stream
	return c, nil
}

func (c *paCapture) Read(dst []float32) error {
	if err := c.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return err
	}
	copy(dst, c.buf)
	return nil
}

func (c *paCapture) Close() error {
	_ = c.stream.Stop()
	err := c.stream.Close()
	if termErr := pa.Terminate(); err == nil {
		err = termErr
	}
	return err
}
