package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pikomusic/studio/internal/dsp"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/mixer"
)

type channelFunc func(r *http.Request, s *mixer.Surface, side graph.Side) error

type valueReq struct {
	Value *float64 `json:"value"`
}

type switchReq struct {
	On bool `json:"on"`
}

func (v valueReq) get() (float64, error) {
	if v.Value == nil {
		return 0, errBadRequest
	}
	return *v.Value, nil
}

// value decodes {"value": x}.
func value(r *http.Request) (float64, error) {
	var req valueReq
	if err := decode(r, &req); err != nil {
		return 0, err
	}
	return req.get()
}

func on(r *http.Request) (bool, error) {
	var req switchReq
	if err := decode(r, &req); err != nil {
		return false, err
	}
	return req.On, nil
}

func bandVar(r *http.Request) (mixer.Band, error) {
	b, ok := mixer.ParseBand(mux.Vars(r)["band"])
	if !ok {
		return 0, mixer.ErrBadBand
	}
	return b, nil
}

// channelRoutes are the per-deck strip controls, mounted under the deck.
func (h *Handler) channelRoutes(r *mux.Router) {
	r.HandleFunc("/volume", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		return s.SetVolume(side, v)
	})).Methods(http.MethodPost)

	r.HandleFunc("/eq/{band}", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		band, err := bandVar(r)
		if err != nil {
			return err
		}
		v, err := value(r)
		if err != nil {
			return err
		}
		return s.SetEQ(side, band, v)
	})).Methods(http.MethodPost)
	r.HandleFunc("/eq/{band}/kill", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		band, err := bandVar(r)
		if err != nil {
			return err
		}
		kill, err := on(r)
		if err != nil {
			return err
		}
		return s.SetKill(side, band, kill)
	})).Methods(http.MethodPost)

	r.HandleFunc("/fx/filter", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		var req struct {
			Type        string   `json:"type"`
			FrequencyHz *float64 `json:"frequencyHz"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.Type != "" {
			t, ok := dsp.ParseFilterType(req.Type)
			if !ok {
				return errBadRequest
			}
			if err := s.SetFilterType(side, t); err != nil {
				return err
			}
		}
		if req.FrequencyHz != nil {
			return s.SetFilterFrequency(side, *req.FrequencyHz)
		}
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/fx/distortion", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		return s.SetDrive(side, v)
	})).Methods(http.MethodPost)
	r.HandleFunc("/fx/delay", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		var req struct {
			TimeSeconds *float64 `json:"timeSeconds"`
			Feedback    *float64 `json:"feedback"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		if req.TimeSeconds != nil {
			if err := s.SetDelayTime(side, *req.TimeSeconds); err != nil {
				return err
			}
		}
		if req.Feedback != nil {
			return s.SetDelayFeedback(side, *req.Feedback)
		}
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/fx/reverb", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		return s.SetReverbWet(side, v)
	})).Methods(http.MethodPost)

	r.HandleFunc("/fx/{effect}/bypass", h.onChannel(func(r *http.Request, s *mixer.Surface, side graph.Side) error {
		bypass, err := on(r)
		if err != nil {
			return err
		}
		switch mux.Vars(r)["effect"] {
		case "filter":
			return s.SetFilterBypass(side, bypass)
		case "distortion":
			return s.SetDistortionBypass(side, bypass)
		case "delay":
			return s.SetDelayBypass(side, bypass)
		case "reverb":
			return s.SetReverbBypass(side, bypass)
		}
		return errBadRequest
	})).Methods(http.MethodPost)
}

func (h *Handler) onChannel(fn channelFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side, err := sideVar(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := fn(r, h.sess.Surface, side); err != nil {
			writeError(w, err)
			return
		}
		ch, err := h.sess.Surface.Channel(side)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "channel": ch})
	}
}

// mixerRoutes are the master section controls.
func (h *Handler) mixerRoutes(r *mux.Router) {
	r.HandleFunc("/api/mixer", h.mixerState).Methods(http.MethodGet)
	r.HandleFunc("/api/mixer/crossfader", h.onMixer(func(r *http.Request, s *mixer.Surface) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		s.SetCrossfader(v)
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/curve", h.onMixer(func(r *http.Request, s *mixer.Surface) error {
		var req struct {
			Curve string `json:"curve"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		c, ok := mixer.ParseCurve(req.Curve)
		if !ok {
			return errBadRequest
		}
		s.SetCurve(c)
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/master", h.onMixer(func(r *http.Request, s *mixer.Surface) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		s.SetMasterVolume(v)
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/mixer/limiter", h.onMixer(func(r *http.Request, s *mixer.Surface) error {
		v, err := value(r)
		if err != nil {
			return err
		}
		s.SetLimiterThreshold(v)
		return nil
	})).Methods(http.MethodPost)
}

func (h *Handler) onMixer(fn func(r *http.Request, s *mixer.Surface) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r, h.sess.Surface); err != nil {
			writeError(w, err)
			return
		}
		h.mixerState(w, r)
	}
}

func (h *Handler) mixerState(w http.ResponseWriter, r *http.Request) {
	s := h.sess.Surface
	a, _ := s.Channel(graph.SideA)
	b, _ := s.Channel(graph.SideB)
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"mixer":    s.Mixer(),
		"channels": [2]mixer.Channel{a, b},
	})
}
