// Package media turns track and sample files into graph buffers at the
// engine rate.
package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"gopkg.in/hraban/opus.v2"

	"github.com/pikomusic/studio/internal/graph"
)

var (
	ErrDecode      = errors.New("cannot decode audio")
	ErrUnsupported = errors.New("unsupported audio format")
)

// opusRate is the rate libopusfile always decodes at.
const opusRate = 48000

// Decoder decodes audio in-process where a pure decoder exists and falls
// back to ffmpeg for everything else.
type Decoder struct {
	SampleRate int    // engine rate
	FFmpeg     string // ffmpeg binary; empty disables the fallback
}

// NewDecoder creates a decoder targeting sampleRate.
func NewDecoder(sampleRate int) *Decoder {
	return &Decoder{SampleRate: sampleRate, FFmpeg: "ffmpeg"}
}

// DecodeFile decodes the file at path.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*graph.Buffer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".mp3", ".ogg", ".opus":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err := d.Decode(f, ext)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return buf, nil
	}
	return d.decodeFFmpeg(ctx, path)
}

// Decode decodes r, choosing the codec by file extension.
func (d *Decoder) Decode(r io.ReadSeeker, ext string) (*graph.Buffer, error) {
	var (
		data     []float32
		rate, ch int
		err      error
	)
	switch strings.ToLower(ext) {
	case ".wav":
		data, rate, ch, err = decodeWAV(r)
	case ".mp3":
		data, rate, ch, err = decodeMP3(r)
	case ".ogg", ".opus":
		data, rate, ch, err = decodeOpus(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}
	return d.finish(data, rate, ch)
}

// DecodeBytes decodes an in-memory recording identified by its MIME type.
func (d *Decoder) DecodeBytes(b []byte, mimeType string) (*graph.Buffer, error) {
	return d.Decode(bytes.NewReader(b), ExtensionFor(mimeType))
}

// ExtensionFor maps a container MIME type to a file extension.
func ExtensionFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/opus":
		return ".opus"
	case "audio/webm":
		return ".webm"
	}
	return ""
}

// finish converts to stereo at the engine rate.
func (d *Decoder) finish(data []float32, rate, channels int) (*graph.Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDecode)
	}
	stereo, err := toStereo(data, channels)
	if err != nil {
		return nil, err
	}
	out, err := Resample(stereo, 2, rate, d.SampleRate)
	if err != nil {
		return nil, err
	}
	return &graph.Buffer{Data: out, SampleRate: d.SampleRate}, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: invalid WAV file", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, 0, 0, fmt.Errorf("%w: unknown bit depth", ErrDecode)
	}
	f := buf.AsFloat32Buffer()
	scale := float32(int64(1) << (bitDepth - 1))
	for i := range f.Data {
		f.Data[i] /= scale
	}
	return f.Data, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// decodeMP3 reads go-mp3's 16-bit little-endian stereo output.
func decodeMP3(r io.Reader) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return pcm16ToFloat(raw), dec.SampleRate(), 2, nil
}

// decodeOpus reads a stereo Ogg Opus stream.
func decodeOpus(r io.Reader) ([]float32, int, int, error) {
	s, err := opus.NewStream(r)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer s.Close()
	var out []float32
	pcm := make([]float32, 5760*2) // 120ms, the longest opus packet
	for {
		n, err := s.ReadFloat32(pcm)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		out = append(out, pcm[:n*2]...)
	}
	return out, opusRate, 2, nil
}

// decodeFFmpeg runs ffmpeg to decode anything else straight to stereo PCM
// at the engine rate.
func (d *Decoder) decodeFFmpeg(ctx context.Context, path string) (*graph.Buffer, error) {
	if d.FFmpeg == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	cmd := exec.CommandContext(ctx, d.FFmpeg,
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(d.SampleRate),
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s: %v", ErrDecode, filepath.Base(path), err)
	}
	data := pcm16ToFloat(out)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrDecode)
	}
	return &graph.Buffer{Data: data, SampleRate: d.SampleRate}, nil
}

func pcm16ToFloat(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return out
}

func toStereo(data []float32, channels int) ([]float32, error) {
	switch channels {
	case 2:
		return data, nil
	case 1:
		out := make([]float32, len(data)*2)
		for i, v := range data {
			out[i*2], out[i*2+1] = v, v
		}
		return out, nil
	case 0:
		return nil, fmt.Errorf("%w: no channels", ErrDecode)
	}
	// Keep the first two channels.
	frames := len(data) / channels
	out := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		out[i*2] = data[i*channels]
		out[i*2+1] = data[i*channels+1]
	}
	return out, nil
}
