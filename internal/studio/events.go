package studio

import "github.com/pikomusic/studio/internal/recorder"

// Event types pushed to subscribers.
const (
	EventStatus          = "status"
	EventStep            = "step"
	EventEngine          = "engine"
	EventPatternRecorded = "pattern-recorded"
	EventRecording       = "recording"
	EventArchived        = "archived"
	EventVoiceTagEnded   = "voice-tag-ended"
	EventKit             = "kit"
)

// Recording kinds as stored in the catalog.
const (
	KindMix      = "mix"
	KindVoiceTag = "voice-tag"
)

// Event is one UI notification.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RecordingEvent reports a finished recording.
type RecordingEvent struct {
	Kind      string           `json:"kind"`
	Result    *recorder.Result `json:"result"`
	ObjectKey string           `json:"objectKey,omitempty"`
}

// Subscribe registers fn for every event until the returned func is called.
// fn runs on the goroutine that produced the event and must not block.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
