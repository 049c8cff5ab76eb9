package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dshills/promptwizard/internal/logger"
)

// CORS allows the comma-separated origins, or every origin for "*" or "".
func CORS(allowedOrigins string) func(http.Handler) http.Handler {
	var originSet map[string]bool
	allowAll := allowedOrigins == "" || allowedOrigins == "*"
	if !allowAll {
		originSet = make(map[string]bool)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			originSet[strings.TrimSpace(origin)] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			var allowOrigin string
			if allowAll {
				allowOrigin = "*"
			} else if origin != "" && originSet[origin] {
				allowOrigin = origin
			}

			if allowOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
				if !allowAll {
					w.Header().Set("Vary", "Origin")
				}
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AccessLog logs one line per request.
func AccessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			kv := []any{"method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start)}
			if rw.status >= http.StatusInternalServerError {
				log.Warn("request", kv...)
				return
			}
			log.Info("request", kv...)
		})
	}
}

// Chain wraps h with middleware, outermost first.
func Chain(h http.Handler, mw ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
