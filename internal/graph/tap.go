package graph

import (
	"errors"
	"sync"
)

// ListenerBuffer is the per-listener queue depth, about three seconds of
// 20ms blocks.
const ListenerBuffer = 150

var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// Tap fans out rendered blocks from one point in the graph to N listeners.
// Slow listeners get blocks dropped rather than stalling the renderer.
type Tap struct {
	name      string
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives copies of the blocks published on a tap.
type Listener struct {
	C    chan []float32
	done chan struct{}
	once sync.Once
}

// NewListener creates a listener that is not yet attached to a tap.
func NewListener() *Listener {
	return &Listener{
		C:    make(chan []float32, ListenerBuffer),
		done: make(chan struct{}),
	}
}

// Done is closed when the listener is disconnected.
func (l *Listener) Done() <-chan struct{} { return l.done }

func newTap(name string) *Tap {
	return &Tap{name: name, listeners: make(map[*Listener]struct{})}
}

// Name identifies the tap in logs.
func (t *Tap) Name() string { return t.name }

// Connect attaches l. Attaching the same listener twice is an error.
func (t *Tap) Connect(l *Listener) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[l]; ok {
		return ErrAlreadyConnected
	}
	t.listeners[l] = struct{}{}
	return nil
}

// Subscribe creates and connects a new listener.
func (t *Tap) Subscribe() *Listener {
	l := NewListener()
	_ = t.Connect(l)
	return l
}

// Connected reports whether l is attached.
func (t *Tap) Connected(l *Listener) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.listeners[l]
	return ok
}

// Disconnect detaches l and signals it to stop.
func (t *Tap) Disconnect(l *Listener) error {
	t.mu.Lock()
	_, ok := t.listeners[l]
	delete(t.listeners, l)
	t.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	l.once.Do(func() { close(l.done) })
	return nil
}

// ListenerCount returns the number of attached listeners.
func (t *Tap) ListenerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.listeners)
}

// Publish copies block to every listener.
func (t *Tap) Publish(block []float32) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.listeners) == 0 {
		return
	}
	frame := make([]float32, len(block))
	copy(frame, block)
	for l := range t.listeners {
		select {
		case l.C <- frame:
		default:
			// listener too slow, drop block to keep rendering moving
		}
	}
}

// closeAll disconnects every listener.
func (t *Tap) closeAll() {
	t.mu.Lock()
	ls := t.listeners
	t.listeners = make(map[*Listener]struct{})
	t.mu.Unlock()
	for l := range ls {
		l.once.Do(func() { close(l.done) })
	}
}
