package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pikomusic/studio/internal/deck"
	"github.com/pikomusic/studio/internal/graph"
)

// deckFunc runs one transport operation.
type deckFunc func(r *http.Request, d *deck.Deck) error

func (h *Handler) deckRoutes(r *mux.Router) {
	r.HandleFunc("/load", h.loadTrack).Methods(http.MethodPost)
	r.HandleFunc("/play", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		return d.Play(r.Context())
	})).Methods(http.MethodPost)
	r.HandleFunc("/pause", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.Pause()
	})).Methods(http.MethodPost)
	r.HandleFunc("/toggle", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		return d.TogglePlay(r.Context())
	})).Methods(http.MethodPost)
	r.HandleFunc("/cue", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.Cue()
	})).Methods(http.MethodPost)
	r.HandleFunc("/seek", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		var req struct {
			Seconds float64 `json:"seconds"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		return d.Seek(req.Seconds)
	})).Methods(http.MethodPost)
	r.HandleFunc("/rate", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		var req struct {
			Rate float64 `json:"rate"`
		}
		if err := decode(r, &req); err != nil || req.Rate <= 0 {
			return errBadRequest
		}
		d.SetRate(req.Rate)
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/sync", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return h.sess.Sync(d.Side())
	})).Methods(http.MethodPost)

	r.HandleFunc("/hotcues/{slot}", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		i, err := intVar(r, "slot")
		if err != nil {
			return err
		}
		return d.SetHotCue(i)
	})).Methods(http.MethodPost)
	r.HandleFunc("/hotcues/{slot}/jump", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		i, err := intVar(r, "slot")
		if err != nil {
			return err
		}
		return d.JumpHotCue(i)
	})).Methods(http.MethodPost)
	r.HandleFunc("/hotcues/{slot}", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		i, err := intVar(r, "slot")
		if err != nil {
			return err
		}
		return d.ClearHotCue(i)
	})).Methods(http.MethodDelete)

	r.HandleFunc("/scrub/start", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.ScrubStart()
	})).Methods(http.MethodPost)
	r.HandleFunc("/scrub", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		var req struct {
			Delta float64 `json:"delta"` // degrees of jog wheel rotation
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		return d.Scrub(req.Delta)
	})).Methods(http.MethodPost)
	r.HandleFunc("/scrub/end", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.ScrubEnd()
	})).Methods(http.MethodPost)

	r.HandleFunc("/loop/in", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.SetLoopIn()
	})).Methods(http.MethodPost)
	r.HandleFunc("/loop/out", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.SetLoopOut()
	})).Methods(http.MethodPost)
	r.HandleFunc("/loop/quick", h.onDeck(func(r *http.Request, d *deck.Deck) error {
		var req struct {
			Beats int `json:"beats"`
		}
		if err := decode(r, &req); err != nil {
			return err
		}
		return d.QuickLoop(req.Beats)
	})).Methods(http.MethodPost)
	r.HandleFunc("/loop/exit", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		d.ExitLoop()
		return nil
	})).Methods(http.MethodPost)
	r.HandleFunc("/loop/reloop", h.onDeck(func(_ *http.Request, d *deck.Deck) error {
		return d.Reloop()
	})).Methods(http.MethodPost)

	h.channelRoutes(r)
}

// onDeck resolves {side}, runs fn and answers with the deck's snapshot.
func (h *Handler) onDeck(fn deckFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		side, err := sideVar(r)
		if err != nil {
			writeError(w, err)
			return
		}
		d, err := h.sess.Deck(side)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := fn(r, d); err != nil {
			writeError(w, err)
			return
		}
		h.writeDeck(w, side)
	}
}

func (h *Handler) writeDeck(w http.ResponseWriter, side graph.Side) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deck": h.sess.Status().Decks[side]})
}

func (h *Handler) loadTrack(w http.ResponseWriter, r *http.Request) {
	side, err := sideVar(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var t deck.Track
	if err := decode(r, &t); err != nil || t.Src == "" {
		writeError(w, errBadRequest)
		return
	}
	if err := h.sess.LoadTrack(r.Context(), side, t); err != nil {
		writeError(w, err)
		return
	}
	h.writeDeck(w, side)
}
