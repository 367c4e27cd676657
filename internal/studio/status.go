package studio

import (
	"github.com/pikomusic/studio/internal/deck"
	"github.com/pikomusic/studio/internal/device"
	"github.com/pikomusic/studio/internal/engine"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/mixer"
	"github.com/pikomusic/studio/internal/pattern"
	"github.com/pikomusic/studio/internal/recorder"
	"github.com/pikomusic/studio/internal/sequencer"
)

// DeckStatus merges a transport snapshot with its mixer strip.
type DeckStatus struct {
	deck.Snapshot
	Channel mixer.Channel `json:"channel"`
}

// PadStatus describes one sample slot.
type PadStatus struct {
	Pad    int    `json:"pad"`
	Loaded bool   `json:"loaded"`
	File   string `json:"file,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Levels are RMS meters.
type Levels struct {
	Master float64 `json:"master"`
	Mic    float64 `json:"mic"`
}

// MicStatus is the microphone as the UI sees it.
type MicStatus struct {
	Available bool            `json:"available"`
	State     device.MicState `json:"state"`
	Err       string          `json:"error,omitempty"`
}

// Status is everything the UI layer reads back.
type Status struct {
	Session    string           `json:"session"`
	Engine     engine.State     `json:"engine"`
	Clock      float64          `json:"clock"`
	Decks      [2]DeckStatus    `json:"decks"`
	Mixer      mixer.MixerState `json:"mixer"`
	Sequencer  sequencer.Status `json:"sequencer"`
	Pattern    string           `json:"pattern"`
	Pads       []PadStatus      `json:"pads"`
	Recorder   recorder.Status  `json:"recorder"`
	VoiceTag   recorder.Status  `json:"voiceTag"`
	TagPlaying bool             `json:"voiceTagPlaying"`
	Mic        MicStatus        `json:"mic"`
	Levels     Levels           `json:"levels"`
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	st := Status{
		Session:    s.ID,
		Engine:     s.Engine.State(),
		Clock:      s.Engine.CurrentTime(),
		Mixer:      s.Surface.Mixer(),
		Sequencer:  s.Sequencer.Status(),
		Pattern:    pattern.Encode(s.Sequencer.Pattern()),
		Pads:       s.PadStatus(),
		Recorder:   s.Mix.Status(),
		VoiceTag:   s.VoiceTag.Status(),
		TagPlaying: s.VoiceTag.Playing(),
		Levels: Levels{
			Master: s.Router.Level(graph.TapMaster),
			Mic:    s.Router.Level(graph.TapMic),
		},
	}
	for _, side := range []graph.Side{graph.SideA, graph.SideB} {
		ch, _ := s.Surface.Channel(side)
		st.Decks[side] = DeckStatus{Snapshot: s.Decks[side].Snapshot(), Channel: ch}
	}
	if s.Mic != nil {
		state, err := s.Mic.State()
		st.Mic = MicStatus{Available: true, State: state}
		if err != nil {
			st.Mic.Err = err.Error()
		}
	}
	return st
}

// PadStatus lists the sequencer's pads.
func (s *Session) PadStatus() []PadStatus {
	n := s.Sequencer.Pads()
	out := make([]PadStatus, n)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range out {
		out[i] = PadStatus{
			Pad:    i,
			Loaded: s.Pads.Loaded(i),
			File:   s.kitFiles[i],
			Err:    s.padErrs[i],
		}
	}
	return out
}
