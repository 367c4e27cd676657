package studio

import (
	"context"
	"errors"
	"net/url"

	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/pattern"
)

// PatternCode is the encoded grid.
func (s *Session) PatternCode() string {
	return pattern.Encode(s.Sequencer.Pattern())
}

// ShareQuery returns the beat= query string of the current grid.
func (s *Session) ShareQuery() string {
	return pattern.ShareQuery(s.Sequencer.Pattern())
}

// ApplyShareQuery loads the grid carried by q. A missing or corrupt value
// leaves an empty grid and reports false.
func (s *Session) ApplyShareQuery(q url.Values) bool {
	p, ok := pattern.FromQuery(q, s.Sequencer.Pads())
	// The pad count always matches, so SetPattern cannot fail here.
	_ = s.Sequencer.SetPattern(p)
	if !ok && q.Get(pattern.QueryKey) != "" {
		logger.Warn("studio: shared pattern rejected", logger.String("beat", q.Get(pattern.QueryKey)))
	}
	return ok
}

// SharePattern stores the grid and returns its short id.
func (s *Session) SharePattern(ctx context.Context) (string, error) {
	if s.stores.Patterns == nil {
		return "", ErrNoStore
	}
	return s.stores.Patterns.Save(ctx, s.Sequencer.Pattern())
}

// LoadSharedPattern replaces the grid with the one stored under id. A stored
// pattern that no longer decodes leaves an empty grid.
func (s *Session) LoadSharedPattern(ctx context.Context, id string) error {
	if s.stores.Patterns == nil {
		return ErrNoStore
	}
	p, err := s.stores.Patterns.Load(ctx, id, s.Sequencer.Pads())
	if errors.Is(err, pattern.ErrInvalid) {
		s.Sequencer.ClearPattern()
		return err
	}
	if err != nil {
		return err
	}
	return s.Sequencer.SetPattern(p)
}
