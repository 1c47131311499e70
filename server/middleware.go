package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"esim-dashboard/utils"
)

// RequestLogger logs one line per request once the response is written.
func RequestLogger(logger *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, req)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("%s %s %d %dB %s (%s)",
				req.Method, req.URL.Path, status, ww.BytesWritten(),
				time.Since(start).Round(time.Microsecond), req.RemoteAddr)
		})
	}
}
