package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pikomusic/studio/internal/recorder"
	"github.com/pikomusic/studio/internal/studio"
)

const maxListLimit = 100

func (h *Handler) recorderRoutes(r *mux.Router) {
	rr := r.PathPrefix("/api/recorder/{kind}").Subrouter()
	rr.HandleFunc("", h.onRecorder(nil)).Methods(http.MethodGet)
	rr.HandleFunc("/start", h.onRecorder(h.startRecorder)).Methods(http.MethodPost)
	rr.HandleFunc("/stop", h.onRecorder(func(r *http.Request, rec *recorder.Recorder) error {
		_, err := rec.Stop()
		return err
	})).Methods(http.MethodPost)
	rr.HandleFunc("/clear", h.onRecorder(func(_ *http.Request, rec *recorder.Recorder) error {
		rec.Clear()
		return nil
	})).Methods(http.MethodPost)
	rr.HandleFunc("/download", h.download).Methods(http.MethodGet)

	r.HandleFunc("/api/voicetag/play", h.playTag).Methods(http.MethodPost)

	r.HandleFunc("/api/recordings", h.recordings).Methods(http.MethodGet)
	r.HandleFunc("/api/recordings/{id}/url", h.recordingURL).Methods(http.MethodGet)
}

func (h *Handler) recorderVar(r *http.Request) (*recorder.Recorder, error) {
	switch mux.Vars(r)["kind"] {
	case studio.KindMix:
		return h.sess.Mix, nil
	case studio.KindVoiceTag:
		return h.sess.VoiceTag.Recorder, nil
	}
	return nil, errBadRequest
}

func (h *Handler) startRecorder(r *http.Request, rec *recorder.Recorder) error {
	if rec == h.sess.Mix {
		return h.sess.StartRecording(r.Context())
	}
	return h.sess.StartVoiceTag(r.Context())
}

// onRecorder resolves {kind}, runs fn when set and answers with the
// recorder's status.
func (h *Handler) onRecorder(fn func(r *http.Request, rec *recorder.Recorder) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.recorderVar(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if fn != nil {
			if err := fn(r, rec); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "recorder": rec.Status()})
	}
}

// download serves the last finished recording as an attachment.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recorderVar(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := rec.Result()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (h *Handler) playTag(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.VoiceTag.PlayTag(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "playing": h.sess.VoiceTag.Playing()})
}

func (h *Handler) recordings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}
	list, err := h.sess.Recordings(r.Context(), q.Get("kind"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "recordings": list})
}

func (h *Handler) recordingURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.sess.RecordingURL(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "url": u})
}
