package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
)

var ErrNoTag = errors.New("no voice tag recorded")

// Decoder turns a finished recording back into a playable buffer at the
// engine rate.
type Decoder interface {
	DecodeBytes(data []byte, mimeType string) (*graph.Buffer, error)
}

// Ports is the part of the router a voice tag plays through.
type Ports interface {
	Connect(port graph.Port, src graph.Source) error
	Disconnect(port graph.Port) error
	Connected(port graph.Port) graph.Source
}

// VoiceTag records the isolated mic tap and plays the result back through
// the master bus.
type VoiceTag struct {
	*Recorder
	ports  Ports
	dec    Decoder
	engine int

	mu      sync.Mutex
	playing *graph.BufferSource
	onEnded func()
}

// NewVoiceTag records tap and plays tags through ports.
func NewVoiceTag(tap *graph.Tap, eng Resumer, ports Ports, dec Decoder, sampleRate int, opts Options) *VoiceTag {
	return &VoiceTag{
		Recorder: New(VoiceTagKind, tap, eng, sampleRate, opts),
		ports:    ports,
		dec:      dec,
		engine:   sampleRate,
	}
}

// OnPlaybackEnded registers a callback for the end of a tag playback.
func (v *VoiceTag) OnPlaybackEnded(fn func()) {
	v.mu.Lock()
	v.onEnded = fn
	v.mu.Unlock()
}

// PlayTag decodes the last tag and plays it once. A playback in progress is
// replaced.
func (v *VoiceTag) PlayTag(ctx context.Context) error {
	res, err := v.Result()
	if err != nil {
		return ErrNoTag
	}
	buf, err := v.dec.DecodeBytes(res.Data, res.MimeType)
	if err != nil {
		return fmt.Errorf("decode voice tag: %w", err)
	}
	if err := v.eng.Resume(ctx); err != nil {
		return fmt.Errorf("resume engine: %w", err)
	}

	src := graph.NewBufferSource(buf, v.engine)
	src.OnEnded(func() { v.ended(src) })

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ports.Disconnect(graph.PortVoiceTagPlayback); err != nil && !errors.Is(err, graph.ErrNotConnected) {
		logger.Warn("voice tag: disconnect failed", logger.ErrorField(err))
	}
	if err := v.ports.Connect(graph.PortVoiceTagPlayback, src); err != nil {
		return err
	}
	v.playing = src
	src.Play()
	return nil
}

// Playing reports whether a tag is being played back.
func (v *VoiceTag) Playing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.playing != nil
}

// ended detaches src unless a newer playback already replaced it.
func (v *VoiceTag) ended(src *graph.BufferSource) {
	v.mu.Lock()
	if v.playing != src {
		v.mu.Unlock()
		return
	}
	v.playing = nil
	if v.ports.Connected(graph.PortVoiceTagPlayback) == graph.Source(src) {
		_ = v.ports.Disconnect(graph.PortVoiceTagPlayback)
	}
	cb := v.onEnded
	v.mu.Unlock()
	if cb != nil {
		cb()
	}
}
