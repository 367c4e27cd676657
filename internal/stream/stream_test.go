package stream

import (
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pikomusic/studio/internal/graph"
)

// --- Framing ---

func TestFramerCutsFixedFrames(t *testing.T) {
	f := newFramer(4)
	if got := f.push([]float32{1, 2, 3}); len(got) != 0 {
		t.Errorf("push(3) = %v, want no frames", got)
	}
	got := f.push([]float32{4, 5, 6, 7, 8, 9})
	if len(got) != 2 {
		t.Fatalf("push = %d frames, want 2", len(got))
	}
	if got[0][0] != 1 || got[0][3] != 4 || got[1][0] != 5 || got[1][3] != 8 {
		t.Errorf("frames = %v", got)
	}
	if len(f.pending) != 1 || f.pending[0] != 9 {
		t.Errorf("pending = %v, want [9]", f.pending)
	}
}

func TestFloat32ToBytes(t *testing.T) {
	b := Float32ToBytes([]float32{0.5, -1})
	if len(b) != 8 {
		t.Fatalf("len = %d, want 8", len(b))
	}
	if v := math.Float32frombits(binary.LittleEndian.Uint32(b[4:])); v != -1 {
		t.Errorf("second sample = %v, want -1", v)
	}
}

// --- HTTP ---

func TestHTTPHandlerWithoutEncoder(t *testing.T) {
	tap := graph.NewRouter(48000).Tap(graph.TapMaster)
	h := NewHTTPHandler(tap, 48000)
	h.FFmpeg = "/nonexistent/ffmpeg"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if tap.ListenerCount() != 0 {
		t.Error("listener left on the tap")
	}
}

// --- WebRTC ---

func TestWebRTCHandlerRejects(t *testing.T) {
	tap := graph.NewRouter(48000).Tap(graph.TapMaster)
	tests := []struct {
		name   string
		rate   int
		method string
		body   string
		want   int
	}{
		{"preflight", 48000, http.MethodOptions, "", http.StatusOK},
		{"get", 48000, http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad offer", 48000, http.MethodPost, "{not json", http.StatusBadRequest},
		{"rate", 44100, http.MethodPost, "{}", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewWebRTCHandler(tap, tt.rate)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/offer", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if h.PeerCount() != 0 {
				t.Errorf("PeerCount = %d, want 0", h.PeerCount())
			}
		})
	}
}
