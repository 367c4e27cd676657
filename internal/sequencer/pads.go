package sequencer

import (
	"context"
	"fmt"

	"github.com/pikomusic/studio/internal/pattern"
)

// Pattern returns a copy of the grid.
func (s *Scheduler) Pattern() pattern.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pat.Clone()
}

// SetPattern replaces the grid. The pad count must match.
func (s *Scheduler) SetPattern(p pattern.Pattern) error {
	if p.Pads() != s.cfg.Pads {
		return fmt.Errorf("%w: %d pads, want %d", pattern.ErrInvalid, p.Pads(), s.cfg.Pads)
	}
	s.mu.Lock()
	s.pat = p.Clone()
	s.mu.Unlock()
	return nil
}

// Toggle flips one cell.
func (s *Scheduler) Toggle(pad, step int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pat.Toggle(pad, step)
}

// ClearPattern turns every cell off.
func (s *Scheduler) ClearPattern() {
	s.mu.Lock()
	s.pat.Clear()
	s.mu.Unlock()
}

// SetMute silences pad in the sequence.
func (s *Scheduler) SetMute(pad int, on bool) error {
	if pad < 0 || pad >= s.cfg.Pads {
		return ErrBadPad
	}
	s.mu.Lock()
	s.mute[pad] = on
	s.mu.Unlock()
	return nil
}

// SetSolo makes only soloed pads audible while any pad is soloed.
func (s *Scheduler) SetSolo(pad int, on bool) error {
	if pad < 0 || pad >= s.cfg.Pads {
		return ErrBadPad
	}
	s.mu.Lock()
	s.solo[pad] = on
	s.mu.Unlock()
	return nil
}

// ArmRecord starts a recording pass of RecordBars bars. Pads hit live during
// the pass are written into the grid at the audible step.
func (s *Scheduler) ArmRecord(ctx context.Context) error {
	s.mu.Lock()
	s.recording = true
	s.recorded = 0
	s.mu.Unlock()
	if err := s.Start(ctx); err != nil {
		s.DisarmRecord()
		return err
	}
	return nil
}

// DisarmRecord ends a recording pass early without signalling completion.
func (s *Scheduler) DisarmRecord() {
	s.mu.Lock()
	s.recording = false
	s.recorded = 0
	s.mu.Unlock()
}

// TriggerPad plays pad now, resuming the engine if needed.
func (s *Scheduler) TriggerPad(ctx context.Context, pad int) error {
	if pad < 0 || pad >= s.cfg.Pads {
		return ErrBadPad
	}
	if err := s.eng.Resume(ctx); err != nil {
		return fmt.Errorf("resume engine: %w", err)
	}
	now := s.clock.CurrentTime()
	s.mu.Lock()
	if s.recording && s.current >= 0 {
		_ = s.pat.Set(pad, s.current, true)
	}
	s.mu.Unlock()
	return s.out.Trigger(pad, now, 1)
}

// Status returns the state for the UI.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:       s.running,
		BPM:           s.bpm,
		CurrentStep:   s.current,
		Recording:     s.recording,
		RecordedSteps: s.recorded,
		Mute:          append([]bool(nil), s.mute[:s.cfg.Pads]...),
		Solo:          append([]bool(nil), s.solo[:s.cfg.Pads]...),
	}
}
