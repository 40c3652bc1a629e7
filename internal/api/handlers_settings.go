package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

func (h *Handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

func (h *Handlers) patchSettings(w http.ResponseWriter, r *http.Request) {
	var upd models.SettingsUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeError(w, err)
		return
	}
	if upd.Empty() {
		writeJSON(w, http.StatusOK, h.settings.Get())
		return
	}
	// Colour changes go through the push path so the server sees them.
	if upd.PlayerColor != nil {
		res := h.prefs.SetPlayerColor(r.Context(), *upd.PlayerColor)
		if res.State == models.PushPending {
			writeSettings(w, res.Settings, res.Err)
			return
		}
		upd.PlayerColor = nil
		if upd.Empty() {
			writeJSON(w, http.StatusOK, res.Settings)
			return
		}
	}
	st, err := h.settings.Set(upd)
	writeSettings(w, st, err)
}

func (h *Handlers) setColor(w http.ResponseWriter, r *http.Request) {
	var c models.Color
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, err)
		return
	}
	writePush(w, h.prefs.SetPlayerColor(r.Context(), c))
}

func (h *Handlers) randomColor(w http.ResponseWriter, r *http.Request) {
	writePush(w, h.prefs.SetPlayerColor(r.Context(), models.RandomColor()))
}

func (h *Handlers) resyncColor(w http.ResponseWriter, r *http.Request) {
	writePush(w, h.prefs.Resync(r.Context()))
}

// writePush reports a push attempt. A failed push is not an HTTP error: the
// local commit stands and the state says what happened remotely.
func writePush(w http.ResponseWriter, res models.PushResult) {
	status := http.StatusOK
	if res.State == models.PushPending {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (h *Handlers) setCacheSize(w http.ResponseWriter, r *http.Request) {
	var in models.CacheSizeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	echo, st, err := h.settings.SetCacheSizeInput(in.Input)
	if err != nil {
		writeSettings(w, st, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CacheSizeResult{Echo: echo, Settings: st})
}

func (h *Handlers) nextToolbar(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.CycleToolbar()
	writeSettings(w, st, err)
}

func (h *Handlers) nextLanguage(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.CycleLanguage()
	writeSettings(w, st, err)
}

func (h *Handlers) resetDisclaimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.settings.ResetDisclaimer()
	writeSettings(w, st, err)
}

type keyBindingResponse struct {
	Bound    bool            `json:"bound"`
	Settings models.Settings `json:"settings"`
}

func (h *Handlers) setKey(w http.ResponseWriter, r *http.Request) {
	var set func(models.KeyCode) (bool, models.Settings, error)
	switch binding := chi.URLParam(r, "binding"); binding {
	case "chat":
		set = h.settings.SetChatKey
	case "screenshot":
		set = h.settings.SetScreenshotKey
	default:
		writeError(w, models.ErrNotFound("unknown key binding "+binding))
		return
	}

	var req models.KeyBindingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	bound, st, err := set(req.Key)
	if err != nil {
		writeSettings(w, st, err)
		return
	}
	writeJSON(w, http.StatusOK, keyBindingResponse{Bound: bound, Settings: st})
}
