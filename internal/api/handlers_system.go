package api

import (
	"net/http"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

type connectionResponse struct {
	State   models.ConnectionState `json:"state"`
	Running bool                   `json:"running"`
}

func (h *Handlers) getConnection(w http.ResponseWriter, r *http.Request) {
	st := h.conn.State()
	writeJSON(w, http.StatusOK, connectionResponse{State: st, Running: st == models.Running})
}

func (h *Handlers) getInfo(w http.ResponseWriter, r *http.Request) {
	if h.info == nil {
		writeJSON(w, http.StatusOK, models.Info{Connection: h.conn.State()})
		return
	}
	writeJSON(w, http.StatusOK, h.info())
}

// createBackup triggers an immediate settings backup and returns the file path.
func (h *Handlers) createBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, models.ErrNotFound("backups are not configured"))
		return
	}
	file, err := h.backups.RunBackupNow()
	if err != nil {
		writeError(w, models.ErrInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file": file,
	})
}

// listBackups returns a list of available backup files.
func (h *Handlers) listBackups(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"backups": []string{}})
		return
	}
	files, err := h.backups.ListBackups()
	if err != nil {
		writeError(w, models.ErrInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": files,
	})
}
