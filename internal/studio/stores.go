package studio

import (
	"context"
	"time"

	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/pattern"
	"github.com/pikomusic/studio/internal/recorder"
	"github.com/pikomusic/studio/internal/store"
)

// DownloadExpiry is the lifetime of an archive download link.
const DownloadExpiry = 15 * time.Minute

const keepTimeout = 30 * time.Second

// PatternShares keeps shared grids.
type PatternShares interface {
	Save(ctx context.Context, p pattern.Pattern) (string, error)
	Load(ctx context.Context, id string, pads int) (pattern.Pattern, error)
}

// RecordingArchive keeps finished recordings.
type RecordingArchive interface {
	Upload(ctx context.Context, res *recorder.Result, at time.Time) (string, error)
	DownloadURL(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
}

// RecordingCatalog lists finished recordings.
type RecordingCatalog interface {
	Add(ctx context.Context, rec store.Recording) error
	Get(ctx context.Context, id string) (store.Recording, error)
	List(ctx context.Context, kind string, limit int) ([]store.Recording, error)
}

// Stores are the optional persistence backends. A nil field disables it.
type Stores struct {
	Patterns PatternShares
	Archive  RecordingArchive
	Catalog  RecordingCatalog
}

// keep archives and catalogs res in the background.
func (s *Session) keep(kind string, res *recorder.Result) {
	if res == nil || (s.stores.Archive == nil && s.stores.Catalog == nil) {
		return
	}
	at := s.opts.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, keepTimeout)
		defer cancel()

		var key string
		if s.stores.Archive != nil {
			k, err := s.stores.Archive.Upload(ctx, res, at)
			if err != nil {
				logger.Warn("studio: archive upload failed", logger.String("file", res.Filename), logger.ErrorField(err))
				return
			}
			key = k
		}
		if s.stores.Catalog != nil {
			rec := store.NewRecording(kind, res, key)
			rec.CreatedAt = at
			if err := s.stores.Catalog.Add(ctx, rec); err != nil {
				logger.Warn("studio: catalog insert failed", logger.String("id", res.ID), logger.ErrorField(err))
				return
			}
		}
		logger.Info("studio: recording kept",
			logger.String("kind", kind),
			logger.String("file", res.Filename),
			logger.String("key", key))
		s.emit(Event{Type: EventArchived, Data: RecordingEvent{Kind: kind, Result: res, ObjectKey: key}})
	}()
}

// Recordings lists catalogued recordings, newest first.
func (s *Session) Recordings(ctx context.Context, kind string, limit int) ([]store.Recording, error) {
	if s.stores.Catalog == nil {
		return nil, ErrNoStore
	}
	return s.stores.Catalog.List(ctx, kind, limit)
}

// RecordingURL returns a download link for an archived recording.
func (s *Session) RecordingURL(ctx context.Context, id string) (string, error) {
	if s.stores.Catalog == nil || s.stores.Archive == nil {
		return "", ErrNoStore
	}
	rec, err := s.stores.Catalog.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.ObjectKey == "" {
		return "", store.ErrNotFound
	}
	return s.stores.Archive.DownloadURL(ctx, rec.ObjectKey, rec.Filename, DownloadExpiry)
}
