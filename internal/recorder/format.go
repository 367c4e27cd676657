package recorder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

// Container types tried in order of preference.
const (
	MimeWebmOpus = "audio/webm;codecs=opus"
	MimeOggOpus  = "audio/ogg;codecs=opus"
	MimeOpus     = "audio/opus"
	MimeWAV      = "audio/wav"
)

// DefaultFormats is the negotiation order.
var DefaultFormats = []string{MimeWebmOpus, MimeOggOpus, MimeOpus, MimeWAV}

var ErrUnsupported = errors.New("no supported recording format")

const (
	channels     = 2
	opusFrameMs  = 20
	opusBitrate  = 128000
	opusMaxBytes = 4000
)

var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// Format is a negotiated container.
type Format struct {
	MimeType string
	Ext      string
}

// encoder turns rendered blocks into chunks and chunks into a container.
type encoder interface {
	Encode(block []float32) ([][]byte, error)
	// Flush emits whatever Encode is still holding back.
	Flush() ([][]byte, error)
	Finish(chunks [][]byte, w io.Writer) error
}

// Supported reports whether mime can be written at sampleRate.
func Supported(mime string, sampleRate int) bool {
	switch mime {
	case MimeOggOpus, MimeOpus:
		return slices.Contains(opusRates, sampleRate)
	case MimeWAV:
		return sampleRate > 0
	}
	return false
}

// Negotiate picks the first supported entry of prefs.
func Negotiate(prefs []string, sampleRate int) (Format, error) {
	for _, m := range prefs {
		if Supported(m, sampleRate) {
			return Format{MimeType: m, Ext: extension(m)}, nil
		}
	}
	return Format{}, fmt.Errorf("%w: tried %s", ErrUnsupported, strings.Join(prefs, ", "))
}

func extension(mime string) string {
	switch mime {
	case MimeWebmOpus:
		return "webm"
	case MimeOggOpus:
		return "ogg"
	case MimeOpus:
		return "opus"
	default:
		return "wav"
	}
}

func newEncoder(f Format, sampleRate int) (encoder, error) {
	switch f.MimeType {
	case MimeOggOpus, MimeOpus:
		return newOpusEncoder(sampleRate)
	case MimeWAV:
		return &wavEncoder{sampleRate: sampleRate}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, f.MimeType)
}

// --- Ogg Opus ---

type opusEncoder struct {
	enc        *opus.Encoder
	sampleRate int
	frame      int // interleaved samples per packet
	pending    []float32
	buf        []byte
}

func newOpusEncoder(sampleRate int) (*opusEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, fmt.Errorf("opus bitrate: %w", err)
	}
	return &opusEncoder{
		enc:        enc,
		sampleRate: sampleRate,
		frame:      sampleRate * opusFrameMs / 1000 * channels,
		buf:        make([]byte, opusMaxBytes),
	}, nil
}

// Encode emits one packet per complete 20ms frame.
func (e *opusEncoder) Encode(block []float32) ([][]byte, error) {
	e.pending = append(e.pending, block...)
	var out [][]byte
	for len(e.pending) >= e.frame {
		n, err := e.enc.EncodeFloat32(e.pending[:e.frame], e.buf)
		if err != nil {
			return out, fmt.Errorf("opus encode: %w", err)
		}
		out = append(out, append([]byte(nil), e.buf[:n]...))
		e.pending = e.pending[e.frame:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return out, nil
}

// Flush pads the last partial frame with silence and encodes it.
func (e *opusEncoder) Flush() ([][]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	frame := make([]float32, e.frame)
	copy(frame, e.pending)
	e.pending = nil
	n, err := e.enc.EncodeFloat32(frame, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return [][]byte{append([]byte(nil), e.buf[:n]...)}, nil
}

// Finish writes the packets as an Ogg Opus stream.
func (e *opusEncoder) Finish(chunks [][]byte, w io.Writer) error {
	ogg, err := oggwriter.NewWith(w, uint32(e.sampleRate), channels)
	if err != nil {
		return fmt.Errorf("ogg writer: %w", err)
	}
	samplesPerFrame := uint32(e.frame / channels)
	for i, c := range chunks {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i) * samplesPerFrame,
				SSRC:           1,
			},
			Payload: c,
		}
		if err := ogg.WriteRTP(pkt); err != nil {
			return fmt.Errorf("ogg page %d: %w", i, err)
		}
	}
	return ogg.Close()
}

// --- WAV ---

type wavEncoder struct {
	sampleRate int
}

// Encode converts a block to 16-bit little-endian PCM.
func (e *wavEncoder) Encode(block []float32) ([][]byte, error) {
	return [][]byte{floatsToPCM16(block)}, nil
}

func (e *wavEncoder) Flush() ([][]byte, error) { return nil, nil }

// Finish writes a RIFF/WAVE file. The encoder needs to seek back to patch
// the header, so the file is built on disk first.
func (e *wavEncoder) Finish(chunks [][]byte, w io.Writer) error {
	f, err := os.CreateTemp("", "piko-rec-*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	total := 0
	for _, c := range chunks {
		total += len(c) / 2
	}
	data := make([]int, 0, total)
	for _, c := range chunks {
		for i := 0; i+1 < len(c); i += 2 {
			data = append(data, int(int16(binary.LittleEndian.Uint16(c[i:]))))
		}
	}

	enc := wav.NewEncoder(f, e.sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: e.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func floatsToPCM16(block []float32) []byte {
	out := make([]byte, len(block)*2)
	for i, v := range block {
		s := math.Round(float64(max(-1, min(1, v))) * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}
