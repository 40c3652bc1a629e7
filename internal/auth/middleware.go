package auth

import (
	"encoding/json"
	"net/http"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

const (
	KeyHeader        = "X-DMP-Key"
	apiKeyQueryParam = "api-key" // EventSource cannot set headers
)

// Middleware rejects requests without a valid key unless the service is in
// open mode. The key is read from the X-DMP-Key header or the api-key query
// parameter.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.IsOpenMode() {
			next.ServeHTTP(w, r)
			return
		}

		if key := r.Header.Get(KeyHeader); key != "" && s.VerifyKey(key) {
			next.ServeHTTP(w, r)
			return
		}
		if key := r.URL.Query().Get(apiKeyQueryParam); key != "" && s.VerifyKey(key) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(models.ErrUnauthorized("missing or invalid access key"))
	})
}
