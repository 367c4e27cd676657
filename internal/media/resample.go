package media

import (
	"fmt"

	"github.com/dh1tw/gosamplerate"
)

// Resample converts interleaved audio from one rate to another. Equal rates
// return data unchanged.
func Resample(data []float32, channels, from, to int) ([]float32, error) {
	if from == to || len(data) == 0 {
		return data, nil
	}
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("%w: bad sample rate %d -> %d", ErrDecode, from, to)
	}
	out, err := gosamplerate.Simple(data, float64(to)/float64(from), channels, gosamplerate.SRC_SINC_MEDIUM_QUALITY)
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w", from, to, err)
	}
	return out, nil
}
