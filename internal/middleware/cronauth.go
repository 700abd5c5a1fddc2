package middleware

import (
	"encoding/json"
	"net/http"
)

// HeaderCronSecret authenticates cron-triggered requests.
const HeaderCronSecret = "x-cron-secret"

// CronAuth guards cron-only endpoints: 500 when no secret is configured,
// 401 when the header is absent or wrong.
func CronAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if secret == "" {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"ok":    false,
					"error": "CRON_SECRET not configured",
				})
				return
			}
			if incoming := r.Header.Get(HeaderCronSecret); incoming == "" || incoming != secret {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"ok":      false,
					"error":   "unauthorized",
					"message": "Missing or invalid x-cron-secret header. This endpoint is for cron only.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
