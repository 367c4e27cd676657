package api

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/pikomusic/studio/internal/pattern"
	"github.com/pikomusic/studio/internal/sequencer"
)

type padReq struct {
	Pad int  `json:"pad"`
	On  bool `json:"on"`
}

func (h *Handler) sequencerRoutes(r *mux.Router) {
	r.HandleFunc("/api/sequencer", h.sequencerState).Methods(http.MethodGet)
	r.HandleFunc("/api/sequencer/start", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		return s.Start(r.Context())
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/stop", h.onSequencer(func(_ *http.Request, s *sequencer.Scheduler) error {
		s.Stop()
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/bpm", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		var req struct {
			BPM float64 `json:"bpm"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		s.SetBPM(req.BPM)
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/toggle", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		var req struct {
			Pad  int `json:"pad"`
			Step int `json:"step"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		_, err := s.Toggle(req.Pad, req.Step)
		return err
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/clear", h.onSequencer(func(_ *http.Request, s *sequencer.Scheduler) error {
		s.ClearPattern()
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/mute", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		var req padReq
		if err := decode(r, &req); err != nil {
			return err
		}
		return s.SetMute(req.Pad, req.On)
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/solo", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		var req padReq
		if err := decode(r, &req); err != nil {
			return err
		}
		return s.SetSolo(req.Pad, req.On)
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/record", h.onSequencer(func(r *http.Request, s *sequencer.Scheduler) error {
		return s.ArmRecord(r.Context())
	})).Methods(http.MethodPost)
	r.HandleFunc("/api/sequencer/record/cancel", h.onSequencer(func(_ *http.Request, s *sequencer.Scheduler) error {
		s.DisarmRecord()
		return nil
	})).Methods(http.MethodPost)

	r.HandleFunc("/api/pads", h.pads).Methods(http.MethodGet)
	r.HandleFunc("/api/pads/{pad}/trigger", h.triggerPad).Methods(http.MethodPost)
	r.HandleFunc("/api/pads/{pad}/load", h.loadPad).Methods(http.MethodPost)

	r.HandleFunc("/api/pattern", h.pattern).Methods(http.MethodGet)
	r.HandleFunc("/api/pattern", h.setPattern).Methods(http.MethodPost)
	r.HandleFunc("/api/pattern/share", h.sharePattern).Methods(http.MethodPost)
	r.HandleFunc("/api/pattern/shared/{id}", h.loadSharedPattern).Methods(http.MethodPost)
}

func (h *Handler) onSequencer(fn func(r *http.Request, s *sequencer.Scheduler) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r, h.sess.Sequencer); err != nil {
			writeError(w, err)
			return
		}
		h.sequencerState(w, r)
	}
}

func (h *Handler) sequencerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"sequencer": h.sess.Sequencer.Status(),
		"pattern":   h.sess.Sequencer.Pattern().Grid(),
	})
}

func (h *Handler) pads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "pads": h.sess.PadStatus()})
}

func (h *Handler) triggerPad(w http.ResponseWriter, r *http.Request) {
	pad, err := intVar(r, "pad")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.sess.Sequencer.TriggerPad(r.Context(), pad); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) loadPad(w http.ResponseWriter, r *http.Request) {
	pad, err := intVar(r, "pad")
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Src string `json:"src"`
	}
	if err := decode(r, &req); err != nil || req.Src == "" {
		writeError(w, errBadRequest)
		return
	}
	if err := h.sess.LoadPad(r.Context(), pad, req.Src); err != nil {
		writeError(w, err)
		return
	}
	h.pads(w, r)
}

func (h *Handler) pattern(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"code":  h.sess.PatternCode(),
		"query": h.sess.ShareQuery(),
		"grid":  h.sess.Sequencer.Pattern().Grid(),
	})
}

// setPattern accepts either the raw code or a share query ("beat=...").
func (h *Handler) setPattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string `json:"code"`
		Query string `json:"query"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	switch {
	case req.Code != "":
		p, err := pattern.Decode(req.Code, h.sess.Sequencer.Pads())
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.sess.Sequencer.SetPattern(p); err != nil {
			writeError(w, err)
			return
		}
	case req.Query != "":
		q, err := url.ParseQuery(req.Query)
		if err != nil {
			writeError(w, errBadRequest)
			return
		}
		if !h.sess.ApplyShareQuery(q) {
			writeError(w, pattern.ErrInvalid)
			return
		}
	default:
		writeError(w, errBadRequest)
		return
	}
	h.pattern(w, r)
}

func (h *Handler) sharePattern(w http.ResponseWriter, r *http.Request) {
	id, err := h.sess.SharePattern(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "query": h.sess.ShareQuery()})
}

func (h *Handler) loadSharedPattern(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.LoadSharedPattern(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	h.pattern(w, r)
}
