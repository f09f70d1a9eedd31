package middleware

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/temportalflux/wishlist/internal/logging"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"

	// ErrorTypeHeader carries the typed error of a failed API call.
	ErrorTypeHeader = "X-Error-Type"
	// SyncRequestHeader carries the id of the sync request a call queued.
	SyncRequestHeader = "X-Sync-Request-ID"

	panicErrorType = "INTERNAL"
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that the first middleware is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequestID tags the request context with the caller's X-Request-ID, or a
// fresh uuid when there is none.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// Logger logs one line per request. Handlers annotate the response with
// ErrorTypeHeader and SyncRequestHeader, and list routes carry the list id in
// their path, so the line ties the call to the list or sync pass it touched.
func Logger(logger *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapper.status),
				zap.Duration("duration", time.Since(start)),
			}
			if r.Pattern != "" {
				fields = append(fields, zap.String("route", r.Pattern))
			}
			if owner, slug := r.PathValue("owner"), r.PathValue("slug"); owner != "" && slug != "" {
				fields = append(fields, zap.String("list", owner+"/"+slug))
			}
			if syncID := w.Header().Get(SyncRequestHeader); syncID != "" {
				fields = append(fields, zap.String("sync_request_id", syncID))
			}
			if errType := w.Header().Get(ErrorTypeHeader); errType != "" {
				fields = append(fields, zap.String("error_type", errType))
			}

			log := logger.WithRequestID(r.Context())
			if wrapper.status >= http.StatusInternalServerError {
				log.Warn("request failed", fields...)
				return
			}
			log.Info("request completed", fields...)
		})
	}
}

// Recover turns a handler panic into a 500 with the same JSON error body the
// API writes, so clients can still decode it.
func Recover(logger *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.WithRequestID(r.Context()).Error("panic recovered",
						zap.String("path", r.URL.Path),
						zap.Any("error", err),
					)
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(ErrorTypeHeader, panicErrorType)
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"type":    panicErrorType,
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
