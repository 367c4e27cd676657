// Package api is the HTTP and websocket control surface of a studio session.
// Every knob, fader and button of the UI maps to one route; state flows back
// through GET /api/status and the /ws/events feed.
package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pikomusic/studio/internal/deck"
	"github.com/pikomusic/studio/internal/device"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/media"
	"github.com/pikomusic/studio/internal/mixer"
	"github.com/pikomusic/studio/internal/pattern"
	"github.com/pikomusic/studio/internal/recorder"
	"github.com/pikomusic/studio/internal/sequencer"
	"github.com/pikomusic/studio/internal/store"
	"github.com/pikomusic/studio/internal/studio"
)

var errBadRequest = errors.New("invalid request")

// Handler routes UI calls onto a session.
type Handler struct {
	sess   *studio.Session
	hub    *Hub
	router *mux.Router
}

// NewHandler builds every route. hub may be nil, which disables /ws/events.
func NewHandler(sess *studio.Session, hub *Hub) *Handler {
	h := &Handler{sess: sess, hub: hub, router: mux.NewRouter()}
	h.router.Use(cors)
	h.routes()
	return h
}

// Router exposes the mux so callers can mount more routes.
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/engine/resume", h.resume).Methods(http.MethodPost)

	h.deckRoutes(r.PathPrefix("/api/decks/{side}").Subrouter())
	h.mixerRoutes(r)
	h.sequencerRoutes(r)
	h.recorderRoutes(r)

	r.HandleFunc("/api/mic/enable", h.micEnable).Methods(http.MethodPost)
	r.HandleFunc("/api/mic/disable", h.micDisable).Methods(http.MethodPost)

	if h.hub != nil {
		r.Handle("/ws/events", h.hub)
	}
}

// cors allows the UI to be served from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Status())
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Resume(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "engine": h.sess.Engine.State()})
}

func (h *Handler) micEnable(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.EnableMic(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mic": h.sess.Status().Mic})
}

func (h *Handler) micDisable(w http.ResponseWriter, r *http.Request) {
	h.sess.DisableMic()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "mic": h.sess.Status().Mic})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("api: write response", logger.ErrorField(err))
	}
}

// writeError maps the package sentinels onto HTTP status codes. The error
// text is shown to the user as a recoverable state.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"ok": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, mixer.ErrBadSide),
		errors.Is(err, mixer.ErrBadBand),
		errors.Is(err, deck.ErrBadHotCue),
		errors.Is(err, deck.ErrBadBeats),
		errors.Is(err, deck.ErrLoopOrder),
		errors.Is(err, deck.ErrNoLoopIn),
		errors.Is(err, deck.ErrSelfSync),
		errors.Is(err, sequencer.ErrBadPad),
		errors.Is(err, graph.ErrBadPad),
		errors.Is(err, pattern.ErrInvalid),
		errors.Is(err, pattern.ErrBadCell):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, deck.ErrNoTrack),
		errors.Is(err, deck.ErrEmptyCue),
		errors.Is(err, recorder.ErrNoResult),
		errors.Is(err, recorder.ErrNoTag),
		errors.Is(err, graph.ErrNoSample),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, recorder.ErrAlreadyRecording),
		errors.Is(err, recorder.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, media.ErrDecode),
		errors.Is(err, media.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, studio.ErrNoStore),
		errors.Is(err, studio.ErrNoMic),
		errors.Is(err, recorder.ErrUnsupported),
		errors.Is(err, recorder.ErrNoTap):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}

func sideVar(r *http.Request) (graph.Side, error) {
	side, ok := graph.ParseSide(mux.Vars(r)["side"])
	if !ok {
		return 0, mixer.ErrBadSide
	}
	return side, nil
}

func intVar(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		return 0, errBadRequest
	}
	return n, nil
}
