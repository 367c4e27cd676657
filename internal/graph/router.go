package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pikomusic/studio/internal/dsp"
)

// Port is a named input of the fixed topology.
type Port int

const (
	PortDeckA Port = iota
	PortDeckB
	PortPads
	PortMic
	PortVoiceTagPlayback
	numPorts
)

var portNames = [numPorts]string{"deck-a", "deck-b", "pads", "mic", "voice-tag-playback"}

func (p Port) String() string {
	if p < 0 || p >= numPorts {
		return fmt.Sprintf("port(%d)", int(p))
	}
	return portNames[p]
}

// DeckPort returns the source port feeding side's chain.
func DeckPort(side Side) Port {
	if side == SideB {
		return PortDeckB
	}
	return PortDeckA
}

// TapPoint names an observation point of the topology.
type TapPoint int

const (
	// TapMaster is post-limiter: exactly what is audible.
	TapMaster TapPoint = iota
	// TapVoiceTag carries the microphone and is never mixed into master.
	TapVoiceTag
	// TapMic carries the microphone for level metering.
	TapMic
	numTaps
)

var tapNames = [numTaps]string{"master", "voice-tag", "mic"}

func (t TapPoint) String() string {
	if t < 0 || t >= numTaps {
		return fmt.Sprintf("tap(%d)", int(t))
	}
	return tapNames[t]
}

// Default gains of the auxiliary paths.
const (
	DefaultMicMonitorGain = 0.15
	DefaultPadsGain       = 0.9
)

var (
	ErrBuilt        = errors.New("graph already built")
	ErrPortOccupied = errors.New("port has a different source connected")
	ErrBadPort      = errors.New("unknown port")
)

// Router owns the fixed node topology. It implements engine.Renderer.
type Router struct {
	sampleRate int

	mu     sync.RWMutex
	built  bool
	ports  [numPorts]Source
	decks  [2]*DeckChain
	master *dsp.Gain
	limit  *dsp.Limiter
	pads   *dsp.Gain
	mic    *dsp.Gain
	tag    *dsp.Gain
	taps   [numTaps]*Tap
	levels [numTaps]*dsp.Param

	scratch []float32
	aux     []float32
}

// NewRouter creates an unbuilt router for an engine at sampleRate.
func NewRouter(sampleRate int) *Router {
	r := &Router{sampleRate: sampleRate}
	for i := range r.taps {
		r.taps[i] = newTap(TapPoint(i).String())
		r.levels[i] = dsp.NewParam(0)
	}
	return r
}

// SampleRate returns the rate the graph renders at.
func (r *Router) SampleRate() int { return r.sampleRate }

// Build creates every node once. It does not depend on the engine state.
func (r *Router) Build() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built {
		return ErrBuilt
	}
	for _, side := range []Side{SideA, SideB} {
		c, err := newDeckChain(r.sampleRate, side)
		if err != nil {
			return fmt.Errorf("deck %s chain: %w", side, err)
		}
		r.decks[side] = c
	}
	lim, err := dsp.NewLimiter(r.sampleRate)
	if err != nil {
		return fmt.Errorf("limiter: %w", err)
	}
	r.limit = lim
	r.master = dsp.NewGain(1)
	r.pads = dsp.NewGain(DefaultPadsGain)
	r.mic = dsp.NewGain(DefaultMicMonitorGain)
	r.tag = dsp.NewGain(1)
	r.built = true
	return nil
}

// Built reports whether Build has succeeded.
func (r *Router) Built() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.built
}

// Connect attaches src to port. Connecting the source already on the port
// returns ErrAlreadyConnected and leaves the graph unchanged.
func (r *Router) Connect(port Port, src Source) error {
	if port < 0 || port >= numPorts {
		return ErrBadPort
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.ports[port] {
	case nil:
		r.ports[port] = src
		return nil
	case src:
		return ErrAlreadyConnected
	default:
		return ErrPortOccupied
	}
}

// Disconnect detaches whatever feeds port.
func (r *Router) Disconnect(port Port) error {
	if port < 0 || port >= numPorts {
		return ErrBadPort
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ports[port] == nil {
		return ErrNotConnected
	}
	r.ports[port] = nil
	return nil
}

// Reconnect swaps the source on port. Nothing else in the graph changes.
func (r *Router) Reconnect(port Port, src Source) error {
	if port < 0 || port >= numPorts {
		return ErrBadPort
	}
	r.mu.Lock()
	r.ports[port] = src
	r.mu.Unlock()
	return nil
}

// Connected returns the source on port, or nil.
func (r *Router) Connected(port Port) Source {
	if port < 0 || port >= numPorts {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ports[port]
}

// Deck returns the node handles of side's chain; nil before Build.
func (r *Router) Deck(side Side) *DeckChain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if side != SideA && side != SideB {
		return nil
	}
	return r.decks[side]
}

// Master returns the master gain; nil before Build.
func (r *Router) Master() *dsp.Gain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.master
}

// Pads returns the gain of the one-shot pad bus.
func (r *Router) Pads() *dsp.Gain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pads
}

// MicMonitor returns the low-volume microphone monitor gain.
func (r *Router) MicMonitor() *dsp.Gain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mic
}

// VoiceTagGain returns the isolated gain for voice tag playback.
func (r *Router) VoiceTagGain() *dsp.Gain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tag
}

func (r *Router) Limiter() *dsp.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limit
}

// Tap returns the named observation point.
func (r *Router) Tap(t TapPoint) *Tap {
	if t < 0 || t >= numTaps {
		return nil
	}
	return r.taps[t]
}

// Level returns the RMS of the last block seen at t.
func (r *Router) Level(t TapPoint) float64 {
	if t < 0 || t >= numTaps {
		return 0
	}
	return r.levels[t].Get()
}

// Teardown disconnects every port and tap listener.
func (r *Router) Teardown() {
	r.mu.Lock()
	for i := range r.ports {
		r.ports[i] = nil
	}
	r.mu.Unlock()
	for _, t := range r.taps {
		t.closeAll()
	}
}

// Render produces one block of interleaved stereo master output.
func (r *Router) Render(dst []float32, frame int64) {
	clear(dst)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.built {
		return
	}
	if cap(r.scratch) < len(dst) {
		r.scratch = make([]float32, len(dst))
		r.aux = make([]float32, len(dst))
	}
	buf := r.scratch[:len(dst)]
	aux := r.aux[:len(dst)]

	for _, side := range []Side{SideA, SideB} {
		if src := r.ports[DeckPort(side)]; src != nil {
			src.Process(buf, frame)
		} else {
			clear(buf)
		}
		// Chains keep running without a source so delay and reverb tails ring out.
		r.decks[side].process(buf, dst)
	}

	if src := r.ports[PortPads]; src != nil {
		src.Process(buf, frame)
		r.pads.Process(buf)
		dsp.Mix(dst, buf, 1)
	}

	if src := r.ports[PortMic]; src != nil {
		src.Process(buf, frame)
		r.levels[TapMic].Set(dsp.RMS(buf))
		r.taps[TapMic].Publish(buf)
		r.taps[TapVoiceTag].Publish(buf)
		copy(aux, buf)
		r.mic.Process(aux)
		dsp.Mix(dst, aux, 1)
	} else {
		r.levels[TapMic].Set(0)
	}

	if src := r.ports[PortVoiceTagPlayback]; src != nil {
		src.Process(buf, frame)
		r.tag.Process(buf)
		dsp.Mix(dst, buf, 1)
	}

	r.master.Process(dst)
	r.limit.Process(dst)
	r.levels[TapMaster].Set(dsp.RMS(dst))
	r.taps[TapMaster].Publish(dst)
}
