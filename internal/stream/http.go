package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

// HTTPHandler serves a chunked MP3 stream of the master bus.
// Each connection spawns an FFmpeg process to encode PCM -> MP3 in real-time.
type HTTPHandler struct {
	source     Source
	sampleRate int
	FFmpeg     string
}

// NewHTTPHandler creates an HTTP stream handler for a tap rendered at
// sampleRate.
func NewHTTPHandler(src Source, sampleRate int) *HTTPHandler {
	return &HTTPHandler{source: src, sampleRate: sampleRate, FFmpeg: "ffmpeg"}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// FFmpeg: float PCM stdin -> MP3 stdout
	cmd := exec.CommandContext(ctx, h.FFmpeg,
		"-f", "f32le",
		"-ar", fmt.Sprint(h.sampleRate),
		"-ac", "2",
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.Warn("http stream: stdin pipe", logger.ErrorField(err))
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		logger.Warn("http stream: stdout pipe", logger.ErrorField(err))
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := cmd.Start(); err != nil {
		logger.Warn("http stream: ffmpeg start", logger.ErrorField(err))
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	listener := graph.NewListener()
	if err := h.source.Connect(listener); err != nil {
		cancel()
		_ = cmd.Wait()
		http.Error(w, "tap unavailable", http.StatusServiceUnavailable)
		return
	}
	defer h.source.Disconnect(listener)

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "piko studio")

	logger.Info("http listener connected", logger.Int("total", h.source.ListenerCount()))
	defer logger.Info("http listener disconnected")

	// Feed PCM blocks to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case block := <-listener.C:
				if _, err := stdin.Write(Float32ToBytes(block)); err != nil {
					return
				}
			}
		}
	}()

	// Read MP3 from FFmpeg and write to HTTP response
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				logger.Warn("http stream: ffmpeg read", logger.ErrorField(err))
			}
			break
		}
	}

	cancel()
	_ = cmd.Wait()
}
