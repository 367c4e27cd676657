package mixer

import (
	"errors"
	"math"
	"testing"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/graph"
)

const eps = 1e-9

func newSurface(t *testing.T) (*Surface, *graph.Router) {
	t.Helper()
	r := graph.NewRouter(48000)
	if err := r.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	s, err := NewSurface(r, DefaultOptions())
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	return s, r
}

// --- Crossfader ---

func TestLinearSumsToOne(t *testing.T) {
	for i := 0; i <= 100; i++ {
		p := float64(i) / 100
		a, b := Gains(p, Linear)
		if math.Abs(a+b-1) > eps {
			t.Errorf("linear(%v): a+b = %v, want 1", p, a+b)
		}
	}
}

func TestSmoothMidpointEqualPower(t *testing.T) {
	a := Gain(0.5, Smooth, graph.SideA)
	b := Gain(0.5, Smooth, graph.SideB)
	want := math.Cos(math.Pi / 4)
	if math.Abs(a-want) > eps || math.Abs(b-want) > eps {
		t.Errorf("smooth(0.5) = %v, %v, want %v", a, b, want)
	}
	if math.Abs(a*a+b*b-1) > eps {
		t.Errorf("smooth(0.5) power = %v, want 1", a*a+b*b)
	}
}

func TestCurveEndpoints(t *testing.T) {
	tests := []struct {
		curve    Curve
		position float64
		wantA    float64
		wantB    float64
	}{
		{Linear, 0, 1, 0},
		{Linear, 1, 0, 1},
		{Sharp, 0, 1, 0},
		{Sharp, 1, 0, 1},
		{Sharp, 0.5, 0.125, 0.125},
		{Smooth, 0, 1, 0},
		{Smooth, 1, 0, 1},
		{Smooth, 0.5, math.Sqrt2 / 2, math.Sqrt2 / 2},
		{Smooth, 0.25, math.Cos(math.Pi / 8), math.Cos(3 * math.Pi / 8)},
	}
	for _, tt := range tests {
		a, b := Gains(tt.position, tt.curve)
		if math.Abs(a-tt.wantA) > eps || math.Abs(b-tt.wantB) > eps {
			t.Errorf("%v(%v) = %v, %v, want %v, %v", tt.curve, tt.position, a, b, tt.wantA, tt.wantB)
		}
	}
}

func TestSmoothIsEqualPower(t *testing.T) {
	for _, p := range []float64{0, 0.1, 0.25, 0.5, 0.8, 1} {
		a, b := Gains(p, Smooth)
		if math.Abs(a*a+b*b-1) > eps {
			t.Errorf("Smooth(%v): a²+b² = %v, want 1", p, a*a+b*b)
		}
		la, lb := Gains(p, Linear)
		if (a < b) != (la < lb) {
			t.Errorf("Smooth(%v) favours the other deck from Linear: %v, %v vs %v, %v", p, a, b, la, lb)
		}
	}
}

func TestGainsBounded(t *testing.T) {
	for _, c := range []Curve{Linear, Sharp, Smooth} {
		for _, p := range []float64{-1, 0, 0.3, 0.7, 1, 2, math.NaN()} {
			a, b := Gains(p, c)
			if a < 0 || a > 1 || b < 0 || b > 1 {
				t.Errorf("%v(%v) = %v, %v, want within [0,1]", c, p, a, b)
			}
		}
	}
}

func TestParseCurve(t *testing.T) {
	for _, c := range []Curve{Linear, Sharp, Smooth} {
		got, ok := ParseCurve(c.String())
		if !ok || got != c {
			t.Errorf("ParseCurve(%q) = %v, %v", c.String(), got, ok)
		}
	}
	if _, ok := ParseCurve("exponential"); ok {
		t.Error("ParseCurve(exponential) ok = true, want false")
	}
}

// --- Surface ---

func TestNewSurfaceRequiresBuiltGraph(t *testing.T) {
	_, err := NewSurface(graph.NewRouter(48000), DefaultOptions())
	if !errors.Is(err, ErrNotBuilt) {
		t.Errorf("NewSurface(unbuilt) = %v, want ErrNotBuilt", err)
	}
}

func TestDeckGainFollowsVolumeAndCrossfader(t *testing.T) {
	s, r := newSurface(t)
	s.SetCurve(Linear)
	s.SetCrossfader(0.25)
	if err := s.SetVolume(graph.SideA, 0.8); err != nil {
		t.Fatal(err)
	}
	if got := r.Deck(graph.SideA).Gain.Value.Get(); math.Abs(got-0.6) > eps {
		t.Errorf("deck A gain = %v, want 0.6", got)
	}
	if got := r.Deck(graph.SideB).Gain.Value.Get(); math.Abs(got-0.25) > eps {
		t.Errorf("deck B gain = %v, want 0.25", got)
	}
	ch, _ := s.Channel(graph.SideA)
	if math.Abs(ch.DeckGain-0.6) > eps {
		t.Errorf("Channel.DeckGain = %v, want 0.6", ch.DeckGain)
	}
}

func TestClamping(t *testing.T) {
	s, r := newSurface(t)
	_ = s.SetVolume(graph.SideA, 3)
	_ = s.SetEQ(graph.SideA, Low, 40)
	_ = s.SetFilterFrequency(graph.SideA, 5)
	_ = s.SetDelayFeedback(graph.SideA, 2)
	_ = s.SetDelayTime(graph.SideA, 9)
	s.SetLimiterThreshold(-80)

	ch, _ := s.Channel(graph.SideA)
	if ch.Volume != 1 {
		t.Errorf("Volume = %v, want 1", ch.Volume)
	}
	if ch.EQ.Low != MaxEQDB {
		t.Errorf("EQ.Low = %v, want %v", ch.EQ.Low, MaxEQDB)
	}
	if ch.FX.Filter.FrequencyHz != dsp.MinFilterHz {
		t.Errorf("filter Hz = %v, want %v", ch.FX.Filter.FrequencyHz, dsp.MinFilterHz)
	}
	if ch.FX.Delay.Feedback != DefaultFeedback {
		t.Errorf("feedback = %v, want %v", ch.FX.Delay.Feedback, DefaultFeedback)
	}
	if ch.FX.Delay.TimeSeconds != 1 {
		t.Errorf("delay time = %v, want 1", ch.FX.Delay.TimeSeconds)
	}
	if got := r.Deck(graph.SideA).Delay.Feedback.Get(); got != DefaultFeedback {
		t.Errorf("node feedback = %v, want %v", got, DefaultFeedback)
	}
	if got := s.Mixer().LimiterThresholdDB; got != dsp.MinLimiterThresholdDB {
		t.Errorf("limiter = %v, want %v", got, dsp.MinLimiterThresholdDB)
	}
}

func TestKillRestoresStoredValue(t *testing.T) {
	s, r := newSurface(t)
	mid := r.Deck(graph.SideB).Mid

	_ = s.SetEQ(graph.SideB, Mid, -4.5)
	_ = s.SetKill(graph.SideB, Mid, true)
	if got := mid.GainDB.Get(); got > -100 {
		t.Errorf("killed band = %v dB, want <= -100", got)
	}
	// Moving the knob while killed keeps the band silent.
	_ = s.SetEQ(graph.SideB, Mid, 3)
	if got := mid.GainDB.Get(); got > -100 {
		t.Errorf("killed band after SetEQ = %v dB, want <= -100", got)
	}
	_ = s.SetKill(graph.SideB, Mid, false)
	if got := mid.GainDB.Get(); got != 3 {
		t.Errorf("unkilled band = %v dB, want 3", got)
	}
}

func TestBypassResetsAndRestores(t *testing.T) {
	s, r := newSurface(t)
	nodes := r.Deck(graph.SideA)
	side := graph.SideA

	_ = s.SetFilterFrequency(side, 250)
	_ = s.SetDrive(side, 0.6)
	_ = s.SetDelayTime(side, 0.3)
	_ = s.SetDelayFeedback(side, 0.4)
	_ = s.SetReverbWet(side, 0.7)

	_ = s.SetFilterBypass(side, true)
	_ = s.SetDistortionBypass(side, true)
	_ = s.SetDelayBypass(side, true)
	_ = s.SetReverbBypass(side, true)

	ch, _ := s.Channel(side)
	if ch.FX.Filter.FrequencyHz != NeutralFilterHz || nodes.Filter.Frequency.Get() != NeutralFilterHz {
		t.Errorf("bypassed filter = %v Hz, want %v", ch.FX.Filter.FrequencyHz, NeutralFilterHz)
	}
	if nodes.Filter.Bypass.Get() == 0 {
		t.Error("filter node not bypassed")
	}
	if ch.FX.Distortion != 0 || nodes.Distortion.Curve() != nil {
		t.Errorf("bypassed drive = %v, want 0 and no curve", ch.FX.Distortion)
	}
	if ch.FX.Delay.Feedback != 0 || nodes.Delay.Feedback.Get() != 0 || nodes.DelayWet.Value.Get() != 0 {
		t.Errorf("bypassed delay feedback = %v, want 0", ch.FX.Delay.Feedback)
	}
	if ch.FX.Reverb != 0 || nodes.ReverbWet.Value.Get() != 0 {
		t.Errorf("bypassed reverb = %v, want 0", ch.FX.Reverb)
	}

	_ = s.SetFilterBypass(side, false)
	_ = s.SetDistortionBypass(side, false)
	_ = s.SetDelayBypass(side, false)
	_ = s.SetReverbBypass(side, false)

	ch, _ = s.Channel(side)
	if ch.FX.Filter.FrequencyHz != 250 || nodes.Filter.Bypass.Get() != 0 {
		t.Errorf("restored filter = %v Hz, want 250", ch.FX.Filter.FrequencyHz)
	}
	if ch.FX.Distortion != 0.6 || nodes.Distortion.Curve() == nil {
		t.Errorf("restored drive = %v, want 0.6", ch.FX.Distortion)
	}
	if ch.FX.Delay.Feedback != 0.4 || nodes.DelayWet.Value.Get() != DefaultDelayWet {
		t.Errorf("restored feedback = %v, want 0.4", ch.FX.Delay.Feedback)
	}
	if ch.FX.Reverb != 0.7 {
		t.Errorf("restored reverb = %v, want 0.7", ch.FX.Reverb)
	}
}

func TestDriveZeroRemovesCurve(t *testing.T) {
	s, r := newSurface(t)
	_ = s.SetDrive(graph.SideB, 0.5)
	if r.Deck(graph.SideB).Distortion.Curve() == nil {
		t.Fatal("curve missing at drive 0.5")
	}
	_ = s.SetDrive(graph.SideB, 0)
	if r.Deck(graph.SideB).Distortion.Curve() != nil {
		t.Error("curve present at drive 0, want passthrough")
	}
}

func TestBadArguments(t *testing.T) {
	s, _ := newSurface(t)
	if err := s.SetVolume(graph.Side(5), 1); !errors.Is(err, ErrBadSide) {
		t.Errorf("SetVolume(bad side) = %v, want ErrBadSide", err)
	}
	if err := s.SetEQ(graph.SideA, Band(7), 1); !errors.Is(err, ErrBadBand) {
		t.Errorf("SetEQ(bad band) = %v, want ErrBadBand", err)
	}
	if _, ok := ParseBand("treble"); ok {
		t.Error("ParseBand(treble) ok = true")
	}
}

func TestCustomKillAndFeedbackCap(t *testing.T) {
	r := graph.NewRouter(48000)
	if err := r.Build(); err != nil {
		t.Fatal(err)
	}
	s, err := NewSurface(r, Options{KillDB: -60, FeedbackCap: 0.5, DelayWet: 0.3})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.SetKill(graph.SideA, High, true)
	if got := r.Deck(graph.SideA).High.GainDB.Get(); got != -60 {
		t.Errorf("kill = %v dB, want -60", got)
	}
	_ = s.SetDelayFeedback(graph.SideA, 0.8)
	ch, _ := s.Channel(graph.SideA)
	if ch.FX.Delay.Feedback != 0.5 {
		t.Errorf("feedback = %v, want 0.5", ch.FX.Delay.Feedback)
	}
}

func TestFreshSurfacePassesHighs(t *testing.T) {
	const (
		rate   = 48000
		block  = 960
		blocks = 20
		amp    = 0.5
	)
	for _, hz := range []float64{200, 5000, 10000} {
		s, r := newSurface(t)
		s.SetCrossfader(0)

		ch, _ := s.Channel(graph.SideA)
		if ch.FX.Bypass.Filter || ch.FX.Filter.Type != dsp.Lowpass || ch.FX.Filter.FrequencyHz != OpenFilterHz {
			t.Errorf("fresh filter = %+v, bypass %v, want open lowpass", ch.FX.Filter, ch.FX.Bypass.Filter)
		}

		data := make([]float32, rate*2)
		for i := 0; i < rate; i++ {
			v := float32(amp * math.Sin(2*math.Pi*hz*float64(i)/rate))
			data[2*i], data[2*i+1] = v, v
		}
		src := graph.NewBufferSource(&graph.Buffer{Data: data, SampleRate: rate}, rate)
		src.Play()
		if err := r.Connect(graph.PortDeckA, src); err != nil {
			t.Fatal(err)
		}

		dst := make([]float32, block*2)
		var sum float64
		var n int
		for b := 0; b < blocks; b++ {
			r.Render(dst, int64(b*block))
			if b < blocks/2 {
				continue // parameter ramps settle
			}
			for _, v := range dst {
				sum += float64(v) * float64(v)
			}
			n += len(dst)
		}
		got := math.Sqrt(sum / float64(n))
		want := amp / math.Sqrt2
		if math.Abs(got-want)/want > 0.02 {
			t.Errorf("%v Hz: master RMS = %.4f, want %.4f", hz, got, want)
		}
	}
}
