package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

// A kit is a directory of one-shot samples. A file belongs to the pad its
// name starts with: "00-kick.wav" is pad 0, "7_clap.mp3" pad 7.

// kitSettle is how long a file must stay unchanged before it is reloaded.
const kitSettle = 100 * time.Millisecond

var audioExts = map[string]bool{".wav": true, ".mp3": true, ".ogg": true, ".opus": true, ".flac": true, ".aiff": true}

// PadFromName returns the pad a kit file is assigned to.
func PadFromName(name string) (int, bool) {
	base := filepath.Base(name)
	if !audioExts[strings.ToLower(filepath.Ext(base))] {
		return 0, false
	}
	end := 0
	for end < len(base) && base[end] >= '0' && base[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	pad, err := strconv.Atoi(base[:end])
	if err != nil || pad >= graph.MaxPads {
		return 0, false
	}
	return pad, true
}

// KitFile is one decoded kit sample.
type KitFile struct {
	Pad  int
	Path string
	Buf  *graph.Buffer
	Err  error
}

// LoadKit decodes every pad file in dir. Files that fail to decode are
// returned with Err set so only that pad is flagged.
func LoadKit(ctx context.Context, dir string, dec *Decoder) ([]KitFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read kit: %w", err)
	}
	var files []KitFile
	seen := make(map[int]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pad, ok := PadFromName(e.Name())
		if !ok || seen[pad] {
			continue
		}
		seen[pad] = true
		p := filepath.Join(dir, e.Name())
		buf, err := dec.DecodeFile(ctx, p)
		files = append(files, KitFile{Pad: pad, Path: p, Buf: buf, Err: err})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Pad < files[j].Pad })
	return files, nil
}

// KitWatcher reloads a pad when its file changes on disk.
type KitWatcher struct {
	dir    string
	dec    *Decoder
	onLoad func(KitFile)
}

// NewKitWatcher watches dir and reports every reload to onLoad. A removed
// file is reported with a nil Buf and nil Err.
func NewKitWatcher(dir string, dec *Decoder, onLoad func(KitFile)) *KitWatcher {
	return &KitWatcher{dir: dir, dec: dec, onLoad: onLoad}
}

// Run blocks until ctx is cancelled.
func (w *KitWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("kit watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	logger.Info("kit: watching", logger.String("dir", w.dir))

	pending := make(map[string]time.Time)
	check := time.NewTicker(kitSettle / 2)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			pad, match := PadFromName(event.Name)
			if !match {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				pending[event.Name] = time.Now()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, event.Name)
				w.onLoad(KitFile{Pad: pad, Path: event.Name})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("kit: watcher error", logger.ErrorField(err))

		case <-check.C:
			now := time.Now()
			for p, last := range pending {
				if now.Sub(last) < kitSettle {
					continue
				}
				delete(pending, p)
				pad, _ := PadFromName(p)
				buf, err := w.dec.DecodeFile(ctx, p)
				if err != nil {
					logger.Warn("kit: reload failed", logger.String("file", p), logger.ErrorField(err))
				}
				w.onLoad(KitFile{Pad: pad, Path: p, Buf: buf, Err: err})
			}
		}
	}
}
