package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pikomusic/studio/internal/graph"
)

// Loader resolves a track source, local path or http(s) URL, and decodes it.
type Loader struct {
	dec  *Decoder
	http *http.Client
}

// NewLoader creates a loader that decodes with dec.
func NewLoader(dec *Decoder) *Loader {
	return &Loader{
		dec:  dec,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// Decoder returns the loader's decoder.
func (l *Loader) Decoder() *Decoder { return l.dec }

// Load fetches src if it is remote and decodes it.
func (l *Loader) Load(ctx context.Context, src string) (*graph.Buffer, error) {
	p, cleanup, err := l.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return l.dec.DecodeFile(ctx, p)
}

// Fetch returns a local path for src. Remote sources are downloaded to a
// temp file that cleanup removes.
func (l *Loader) Fetch(ctx context.Context, src string) (string, func(), error) {
	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		if _, err := os.Stat(src); err != nil {
			return "", nil, err
		}
		return src, func() {}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download audio: status %d", resp.StatusCode)
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		ext = ExtensionFor(resp.Header.Get("Content-Type"))
	}
	tmpFile, err := os.CreateTemp("", "piko-track-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("write audio: %w", err)
	}
	tmpFile.Close()
	name := tmpFile.Name()
	return name, func() { os.Remove(name) }, nil
}
