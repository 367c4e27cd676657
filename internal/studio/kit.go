package studio

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/media"
	"github.com/pikomusic/studio/internal/sequencer"
)

// LoadKit decodes every pad file in dir onto the pad bus. Pads whose file
// fails to decode are flagged and left silent.
func (s *Session) LoadKit(ctx context.Context, dir string) error {
	files, err := media.LoadKit(ctx, dir, s.Loader.Decoder())
	if err != nil {
		return err
	}
	for _, f := range files {
		s.applyKitFile(f)
	}
	logger.Info("studio: kit loaded", logger.String("dir", dir), logger.Int("files", len(files)))
	return nil
}

// LoadPad decodes src onto one pad.
func (s *Session) LoadPad(ctx context.Context, pad int, src string) error {
	if pad < 0 || pad >= s.Sequencer.Pads() {
		return sequencer.ErrBadPad
	}
	buf, err := s.Loader.Load(ctx, src)
	s.applyKitFile(media.KitFile{Pad: pad, Path: src, Buf: buf, Err: err})
	if err != nil {
		return fmt.Errorf("pad %d: %w", pad, err)
	}
	return nil
}

func (s *Session) applyKitFile(f media.KitFile) {
	if f.Pad < 0 || f.Pad >= graph.MaxPads {
		return
	}
	_ = s.Pads.SetSample(f.Pad, f.Buf)

	s.mu.Lock()
	switch {
	case f.Err != nil:
		s.padErrs[f.Pad] = f.Err.Error()
		s.kitFiles[f.Pad] = filepath.Base(f.Path)
	case f.Buf == nil:
		s.padErrs[f.Pad] = ""
		s.kitFiles[f.Pad] = ""
	default:
		s.padErrs[f.Pad] = ""
		s.kitFiles[f.Pad] = filepath.Base(f.Path)
	}
	s.mu.Unlock()

	if f.Err != nil {
		logger.Warn("studio: pad failed to load", logger.Int("pad", f.Pad), logger.ErrorField(f.Err))
	}
	s.emit(Event{Type: EventKit, Data: s.PadStatus()})
}

func (s *Session) watchKit(dir string) {
	w := media.NewKitWatcher(dir, s.Loader.Decoder(), s.applyKitFile)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := w.Run(s.ctx); err != nil {
			logger.Warn("studio: kit watcher stopped", logger.ErrorField(err))
		}
	}()
}
