package stream

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

const (
	opusFrame   = 20 * time.Millisecond
	opusBitrate = 128000
)

var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus streaming.
type WebRTCHandler struct {
	source     Source
	sampleRate int
	mu         sync.Mutex
	peers      []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler for a tap rendered at
// sampleRate.
func NewWebRTCHandler(src Source, sampleRate int) *WebRTCHandler {
	return &WebRTCHandler{source: src, sampleRate: sampleRate}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if !slices.Contains(opusRates, h.sampleRate) {
		http.Error(w, "engine rate not supported by opus", http.StatusServiceUnavailable)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"piko-master",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	<-webrtc.GatheringCompletePromise(pc)

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	logger.Info("webrtc peer connected", logger.Int("total", h.PeerCount()))

	listener := graph.NewListener()
	if err := h.source.Connect(listener); err != nil {
		h.removePeer(pc)
		pc.Close()
		http.Error(w, "tap unavailable", http.StatusServiceUnavailable)
		return
	}
	go h.streamToPeer(listener, audioTrack)

	// Clean up on disconnect
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			_ = h.source.Disconnect(listener)
			h.removePeer(pc)
			pc.Close()
			logger.Info("webrtc peer disconnected", logger.Int("remaining", h.PeerCount()))
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(listener *graph.Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.source.Disconnect(listener)

	enc, err := opus.NewEncoder(h.sampleRate, 2, opus.AppAudio)
	if err != nil {
		logger.Warn("webrtc: opus encoder", logger.ErrorField(err))
		return
	}
	_ = enc.SetBitrate(opusBitrate)

	frames := newFramer(h.sampleRate * int(opusFrame/time.Millisecond) / 1000 * 2)
	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-listener.Done():
			return
		case block := <-listener.C:
			for _, frame := range frames.push(block) {
				n, err := enc.EncodeFloat32(frame, opusBuf)
				if err != nil {
					logger.Warn("webrtc: opus encode", logger.ErrorField(err))
					continue
				}
				if err := track.WriteSample(media.Sample{
					Data:     opusBuf[:n],
					Duration: opusFrame,
				}); err != nil {
					return
				}
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = append(h.peers[:i], h.peers[i+1:]...)
			return
		}
	}
}
