package api

import (
	"context"
	"net/http"
)

// getCache reports occupancy. With ?refresh=true the cache directory is
// re-measured first, picking up objects the game wrote directly.
func (h *Handlers) getCache(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.cache.Refresh(); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, h.cache.Info())
}

func (h *Handlers) getCacheKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.cache.Keys()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// expireCache and deleteCache detach from the request context: once asked,
// the run completes even if the client goes away.
func (h *Handlers) expireCache(w http.ResponseWriter, r *http.Request) {
	rep, err := h.cache.ExpireCache(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) deleteCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.DeleteCache(context.WithoutCancel(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.cache.Info())
}
