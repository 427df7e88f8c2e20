package util

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogHandler provides middleware that logs all requests with their response
// code and duration. Server errors are logged at error level and client
// errors at warning level.
func LogHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rwi := &rwInterceptor{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rwi, r)

		entry := log.WithFields(log.Fields{
			"status":   rwi.statusCode,
			"duration": time.Since(start).Round(time.Millisecond),
			"remote":   r.RemoteAddr,
		})
		switch code := rwi.statusCode; {
		case code >= 500:
			entry.Errorf("%s %s", r.Method, r.URL.Path)
		case code >= 400:
			entry.Warnf("%s %s", r.Method, r.URL.Path)
		default:
			entry.Debugf("%s %s", r.Method, r.URL.Path)
		}
	})
}

// rwInterceptor records the status code. It passes flushes through so event
// streams keep working behind the middleware.
type rwInterceptor struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rwi *rwInterceptor) WriteHeader(code int) {
	if !rwi.wroteHeader {
		rwi.statusCode = code
		rwi.wroteHeader = true
	}
	rwi.ResponseWriter.WriteHeader(code)
}

func (rwi *rwInterceptor) Write(b []byte) (int, error) {
	if !rwi.wroteHeader {
		rwi.WriteHeader(http.StatusOK)
	}
	return rwi.ResponseWriter.Write(b)
}

func (rwi *rwInterceptor) Flush() {
	if !rwi.wroteHeader {
		rwi.WriteHeader(http.StatusOK)
	}
	if flusher, ok := rwi.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
