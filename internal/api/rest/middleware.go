package rest

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	errs "github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/domain/threat"
	"github.com/vaultmesh/backup-sentinel/internal/metrics"
	"github.com/vaultmesh/backup-sentinel/internal/service/admission"
	"github.com/vaultmesh/backup-sentinel/internal/service/auditlog"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares so the first listed runs outermost.
func chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// requestIDMiddleware assigns each request a correlation ID, echoes it
// in the response and makes it ambient for audit events.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := auditlog.WithCorrelationID(r.Context(), requestID)
		ctx = auditlog.WithNetwork(ctx, audit.Network{
			RemoteIP:  clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// securityHeadersMiddleware sets the standard hardening headers.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.status),
			zap.Duration("duration", duration),
			zap.String("remote_ip", clientIP(r)),
		)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("stack", string(debug.Stack())),
				)
				event := audit.NewEvent(audit.CategoryError, "panic", audit.OutcomeFailure, "handler panic")
				event.Details = map[string]interface{}{"path": r.URL.Path}
				_ = s.recorder.Record(r.Context(), event)
				writeAppError(w, errs.NewInternalError("an internal error occurred"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// admissionMiddleware runs every request through the rate limiter. A
// denial writes the standard limit headers and records an audit event.
func (s *Server) admissionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := auditlog.ActorFromContext(r.Context())
		req := admission.Request{
			RemoteIP: clientIP(r),
			UserID:   actor.UserID,
			Endpoint: r.URL.Path,
			Class:    classifyEndpoint(r.URL.Path),
		}

		decision := s.limiter.Admit(r.Context(), req)
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		event := audit.NewEvent(audit.CategoryNetworkAccess, "rate_limit", audit.OutcomeDenied, decision.Reason)
		event.Details = map[string]interface{}{
			"scope":    string(decision.Scope),
			"endpoint": r.URL.Path,
		}
		_ = s.recorder.Record(r.Context(), event)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", "0")
		if !decision.ResetAt.IsZero() {
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds()+0.5)))
		writeAppError(w, errs.NewRateLimitError(decision.Reason))
	})
}

// scanMiddleware screens query parameters before a handler sees them.
// Body fields are scanned by the handlers themselves, which know each
// field's input kind.
func (s *Server) scanMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Security.Scanner.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		for field, values := range r.URL.Query() {
			for _, value := range values {
				outcome := s.scanner.Scan(value, threat.Context{
					Kind:     threat.KindFreeText,
					Origin:   threat.OriginAPI,
					Field:    field,
					RemoteIP: clientIP(r),
					Strict:   s.cfg.Security.Scanner.Strict,
				})
				recordScanMetrics("free_text", outcome)
				if outcome.RequiresBlocking() {
					s.auditThreat(r, field, outcome)
					writeAppError(w, errs.ErrThreatDetected)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auditThreat(r *http.Request, field string, outcome threat.Outcome) {
	categories := make([]string, 0, len(outcome.Findings))
	for _, f := range outcome.Findings {
		categories = append(categories, string(f.Category))
	}
	event := audit.NewEventWithSeverity(
		audit.CategorySecurityThreat, "input_scan", audit.OutcomeBlocked,
		audit.Severity(outcome.HighestSeverity().String()), "malicious input rejected")
	event.Details = map[string]interface{}{
		"field":      field,
		"path":       r.URL.Path,
		"categories": categories,
	}
	_ = s.recorder.Record(r.Context(), event)
}

func recordScanMetrics(kind string, outcome threat.Outcome) {
	result := "clean"
	if !outcome.Valid {
		result = "findings"
	}
	metrics.ScanTotal.WithLabelValues(kind, result).Inc()
	for _, f := range outcome.Findings {
		metrics.ScanFindings.WithLabelValues(string(f.Category), f.Severity.String()).Inc()
	}
}

// classifyEndpoint maps a path to its rate limit class.
func classifyEndpoint(path string) admission.EndpointClass {
	switch {
	case strings.HasPrefix(path, "/api/v1/auth/"):
		return admission.ClassAuth
	case strings.HasPrefix(path, "/api/v1/admin/"):
		return admission.ClassAdmin
	case strings.HasPrefix(path, "/api/v1/backups"):
		return admission.ClassBackup
	default:
		return admission.ClassGeneral
	}
}

// clientIP extracts the originating address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
