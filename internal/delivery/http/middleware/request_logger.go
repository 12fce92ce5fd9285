package middleware

import (
	"net/http"
	"strconv"
	"time"

	"storefront-core/pkg/logger"
	"storefront-core/pkg/metrics"
	"storefront-core/pkg/utils"

	"github.com/google/uuid"
)

// RequestLogger attaches a request-scoped logger, then logs and records
// every request once it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}

		reqLogger := logger.WithRequestID(requestID)
		r = r.WithContext(logger.NewContext(r.Context(), &reqLogger))
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		// The mux fills in the matched pattern on the request it was given.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequest(route, strconv.Itoa(wrapped.statusCode), duration)

		// Auth runs further down the chain, so its context is not visible here.
		userID := ""
		if claims, err := utils.ExtractClaims(r); err == nil {
			userID = claims.UserID
		}

		logEvent := reqLogger.Info()
		if wrapped.statusCode >= 500 {
			logEvent = reqLogger.Error()
		} else if wrapped.statusCode >= 400 {
			logEvent = reqLogger.Warn()
		}

		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", wrapped.statusCode).
			Dur("duration_ms", duration).
			Str("ip", getClientIP(r)).
			Str("user_agent", r.UserAgent()).
			Str("user_id", userID).
			Msg("HTTP")
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
