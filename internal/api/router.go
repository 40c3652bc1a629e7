package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Planetworks/DarkMultiPlayer/internal/auth"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

// Deps are the components the router serves. Auth, Backups and Info may be
// nil.
type Deps struct {
	Settings    Settings
	Cache       Cache
	Preferences Preferences
	Connection  Connection
	Backups     Backups
	Events      EventBus
	Auth        *auth.Service
	Info        func() models.Info
}

// NewRouter creates and returns the main HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	h := &Handlers{
		settings: d.Settings,
		cache:    d.Cache,
		prefs:    d.Preferences,
		conn:     d.Connection,
		backups:  d.Backups,
		events:   d.Events,
		info:     d.Info,
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, models.ErrNotFound("no such endpoint: "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, &models.AppError{Code: "METHOD_NOT_ALLOWED", Message: r.Method + " not allowed on " + r.URL.Path})
	})

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Middleware)
		}

		// Settings
		r.Get("/api/settings", h.getSettings)
		r.Patch("/api/settings", h.patchSettings)
		r.Put("/api/settings/color", h.setColor)
		r.Post("/api/settings/color/random", h.randomColor)
		r.Post("/api/settings/color/resync", h.resyncColor)
		r.Post("/api/settings/cache-size", h.setCacheSize)
		r.Post("/api/settings/toolbar/next", h.nextToolbar)
		r.Post("/api/settings/language/next", h.nextLanguage)
		r.Post("/api/settings/disclaimer/reset", h.resetDisclaimer)
		r.Put("/api/settings/keys/{binding}", h.setKey)

		// Cache
		r.Get("/api/cache", h.getCache)
		r.Get("/api/cache/keys", h.getCacheKeys)
		r.Post("/api/cache/expire", h.expireCache)
		r.Post("/api/cache/delete", h.deleteCache)

		// System
		r.Get("/api/connection", h.getConnection)
		r.Get("/api/info", h.getInfo)
		r.Post("/api/backup", h.createBackup)
		r.Get("/api/backups", h.listBackups)

		// SSE
		r.Get("/api/subscribe", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers so a browser-based overlay
// served from another origin can reach the API.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+auth.KeyHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
