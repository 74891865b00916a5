package rest

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	errs "github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/service/auditlog"
)

// actorClaims is the token payload this service understands.
type actorClaims struct {
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// authMiddleware resolves the acting principal from a bearer token.
// Requests without a token proceed anonymously; per-user limits then
// simply do not apply. A token that is present but invalid is rejected
// and audited, since it is either expired or forged.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeAppError(w, errs.NewUnauthorizedError("invalid authorization format"))
			return
		}

		// An empty signing key would verify any HMAC token signed with
		// an empty key. Without a configured secret no token is valid.
		if s.cfg.Security.JWTSecret == "" {
			s.logger.Error("bearer token presented but no jwt secret is configured")
			writeAppError(w, errs.NewUnauthorizedError("invalid or expired token"))
			return
		}

		claims := &actorClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.cfg.Security.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			event := audit.NewEvent(audit.CategoryAuthentication, "token_validation", audit.OutcomeFailure,
				"bearer token rejected")
			event.Details = map[string]interface{}{"path": r.URL.Path}
			_ = s.recorder.Record(r.Context(), event)
			writeAppError(w, errs.NewUnauthorizedError("invalid or expired token"))
			return
		}

		actor := audit.Actor{
			UserID:    claims.Subject,
			Username:  claims.Username,
			Role:      claims.Role,
			SessionID: claims.SessionID,
		}
		next.ServeHTTP(w, r.WithContext(auditlog.WithActor(r.Context(), actor)))
	})
}

// requireAdmin guards administrative endpoints. Denials are audited as
// authorization events.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := auditlog.ActorFromContext(r.Context())
		if actor.Role != "admin" {
			event := audit.NewEvent(audit.CategoryAuthorization, "admin_access", audit.OutcomeDenied,
				"admin endpoint denied")
			event.Details = map[string]interface{}{"path": r.URL.Path}
			_ = s.recorder.Record(r.Context(), event)
			writeAppError(w, errs.NewForbiddenError("insufficient permissions"))
			return
		}
		next(w, r)
	}
}
