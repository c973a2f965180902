package mockbackend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKeyLog struct{}
type ctxKeyClaims struct{}

// statusWriter remembers what the handler answered.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// withAccessLog tags every request with an id, puts a request scoped logger
// in the context and logs the outcome at debug level.
func withAccessLog(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		reqLog := log.WithFields(logrus.Fields{
			"http.req.id":     id,
			"http.req.method": r.Method,
			"http.req.path":   r.URL.Path,
		})

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), ctxKeyLog{}, reqLog)))

		reqLog.WithFields(logrus.Fields{
			"http.resp.status":  sw.status,
			"http.resp.bytes":   sw.bytes,
			"http.resp.took_ms": time.Since(start).Milliseconds(),
		}).Debug("request served")
	})
}

func requestLogger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKeyLog{}).(logrus.FieldLogger); ok {
		return log
	}
	return logrus.StandardLogger()
}

// requireAuth rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.auth.verify(token)
		if err != nil {
			requestLogger(r).WithField("error", err).Info("rejected token")
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims{}, claims)))
	}
}

// requireAdmin is requireAuth plus the ADMIN role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if !claimsFrom(r).isAdmin() {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next(w, r)
	})
}

func bearer(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) || len(h) == len(prefix) {
		return "", false
	}
	return h[len(prefix):], true
}

func claimsFrom(r *http.Request) tokenClaims {
	c, _ := r.Context().Value(ctxKeyClaims{}).(tokenClaims)
	return c
}
