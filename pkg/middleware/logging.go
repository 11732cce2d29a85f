package middleware

import (
	"net/http"
	"time"

	"github.com/elevenetc/hris/pkg/logger"
	"github.com/google/uuid"
)

// LoggingMiddleware tags every request with an id and logs method, path and
// duration. A caller-supplied X-Request-ID is kept so ids correlate across
// services; otherwise one is generated.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)

		logger.Log.WithFields(map[string]interface{}{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Info("Request handled")
	})
}
