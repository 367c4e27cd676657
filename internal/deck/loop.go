package deck

import (
	"context"
	"slices"

	"github.com/pikomusic/studio/internal/engine"
)

// SetLoopIn marks the play head as the loop start. An existing out point at
// or before the new in point is dropped.
func (d *Deck) SetLoopIn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	p := d.src.Position()
	d.loop.In = &p
	d.loop.BeatLength = 0
	if d.loop.Out != nil && *d.loop.Out <= p {
		d.loop.Out = nil
		d.loop.Active = false
		d.stopLoopLocked()
	}
	return nil
}

// SetLoopOut marks the play head as the loop end and activates the loop.
func (d *Deck) SetLoopOut() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.loop.In == nil {
		return ErrNoLoopIn
	}
	p := d.src.Position()
	if p <= *d.loop.In {
		return ErrLoopOrder
	}
	d.loop.Out = &p
	d.loop.BeatLength = 0
	d.startLoopLocked()
	return nil
}

// QuickLoop sets a loop of beats starting at the play head. Asking again
// for the active length turns the loop off.
func (d *Deck) QuickLoop(beats int) error {
	if !slices.Contains(QuickLoopBeats[:], beats) {
		return ErrBadBeats
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.loop.Active && d.loop.BeatLength == beats {
		d.exitLoopLocked()
		return nil
	}
	in := d.src.Position()
	out := min(in+float64(beats)/d.beatsPerSecond(), d.src.Duration())
	if out <= in {
		return ErrLoopOrder
	}
	d.loop.In = &in
	d.loop.Out = &out
	d.loop.BeatLength = beats
	d.startLoopLocked()
	return nil
}

// ExitLoop deactivates the loop and keeps its points.
func (d *Deck) ExitLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitLoopLocked()
}

// Reloop reactivates the last loop region.
func (d *Deck) Reloop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.src == nil {
		return ErrNoTrack
	}
	if d.loop.In == nil || d.loop.Out == nil {
		return ErrNoLoopIn
	}
	d.startLoopLocked()
	d.src.Seek(*d.loop.In)
	return nil
}

// Loop returns the loop region.
func (d *Deck) Loop() Loop {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyLoop(d.loop)
}

// CheckLoop seeks back to the loop start when the play head has left the
// region. The periodic checker calls it; it is exported for tests.
func (d *Deck) CheckLoop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loop.Active || d.src == nil || d.loop.In == nil || d.loop.Out == nil {
		return
	}
	p := d.src.Position()
	if p >= *d.loop.Out || p < *d.loop.In {
		d.src.Seek(*d.loop.In)
	}
}

func (d *Deck) beatsPerSecond() float64 {
	if d.track != nil && d.track.BPM > 0 {
		return d.track.BPM / 60
	}
	return DefaultBeatsPerSecond
}

// startLoopLocked replaces any running checker with a new one.
func (d *Deck) startLoopLocked() {
	d.stopLoopLocked()
	d.loop.Active = true
	if d.ctx.Err() != nil {
		return
	}
	d.checker = engine.Every(d.ctx, d.opts.LoopCheck, func(context.Context) { d.CheckLoop() })
}

func (d *Deck) exitLoopLocked() {
	d.stopLoopLocked()
	d.loop.Active = false
	d.loop.BeatLength = 0
}

// stopLoopLocked cancels the checker without waiting: the checker itself
// takes d.mu, so waiting here would deadlock.
func (d *Deck) stopLoopLocked() {
	if p := d.takeChecker(); p != nil {
		go p.Stop()
	}
}

func (d *Deck) takeChecker() *engine.Periodic {
	p := d.checker
	d.checker = nil
	return p
}
