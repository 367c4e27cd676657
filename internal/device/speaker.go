// Package device connects the engine to the host's audio hardware.
package device

import (
	"fmt"

	"github.com/hajimehoshi/oto/v2"

	"github.com/pikomusic/studio/internal/engine"
)

// formatFloat32LE matches the engine's stream reader.
const formatFloat32LE = oto.FormatFloat32LE

// Speaker pulls rendered audio from the engine into the default output.
type Speaker struct {
	ctx    *oto.Context
	player oto.Player
}

// OpenSpeaker opens the default output at the engine's rate. The engine
// reports Running only once the device is ready.
func OpenSpeaker(eng *engine.Engine) (*Speaker, error) {
	ctx, ready, err := oto.NewContext(eng.SampleRate(), engine.Channels, formatFloat32LE)
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	eng.SetDeviceReady(ready)

	player := ctx.NewPlayer(eng.Reader())
	// Two render blocks of float32 stereo keeps latency near 40ms.
	if b, ok := player.(interface{ SetBufferSize(int) }); ok {
		b.SetBufferSize(2 * eng.BlockFrames() * engine.Channels * 4)
	}
	player.Play()
	return &Speaker{ctx: ctx, player: player}, nil
}

// Close stops pulling audio.
func (s *Speaker) Close() error {
	if s == nil || s.player == nil {
		return nil
	}
	s.player.Pause()
	return s.player.Close()
}
