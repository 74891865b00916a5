package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	errs "github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/domain/threat"
	"github.com/vaultmesh/backup-sentinel/internal/service/auditlog"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAppError(w http.ResponseWriter, err *errs.AppError) {
	writeJSON(w, err.StatusCode, errorResponse{Error: errorBody{Code: err.Code, Message: err.Message}})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.redis.Ping(r.Context()).Err(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": s.cfg.Version,
	})
}

// triggerBackupRequest is the payload for starting a backup job.
type triggerBackupRequest struct {
	Name              string `json:"name"`
	SourcePath        string `json:"source_path"`
	DestinationBucket string `json:"destination_bucket"`
	NotifyEmail       string `json:"notify_email,omitempty"`
	Description       string `json:"description,omitempty"`
}

// fieldScan pairs a request field with the input kind its rules come
// from.
type fieldScan struct {
	field string
	value string
	kind  threat.InputKind
}

func (s *Server) handleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	var req triggerBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, errs.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}
	if req.Name == "" || req.SourcePath == "" || req.DestinationBucket == "" {
		writeAppError(w, errs.NewValidationError("MISSING_FIELDS",
			"name, source_path and destination_bucket are required"))
		return
	}

	scans := []fieldScan{
		{"name", req.Name, threat.KindFreeText},
		{"source_path", req.SourcePath, threat.KindBackupPath},
		{"destination_bucket", req.DestinationBucket, threat.KindBucketName},
		{"notify_email", req.NotifyEmail, threat.KindEmail},
		{"description", req.Description, threat.KindFreeText},
	}
	if !s.scanFields(w, r, scans) {
		return
	}

	jobID := uuid.New()
	event := audit.NewEvent(audit.CategoryBackup, "backup_trigger", audit.OutcomeInProgress, "backup job accepted")
	event.Details = map[string]interface{}{
		"job_id":             jobID.String(),
		"name":               req.Name,
		"destination_bucket": req.DestinationBucket,
	}
	_ = s.recorder.Record(r.Context(), event)

	s.logger.Info("backup job accepted",
		zap.String("job_id", jobID.String()),
		zap.String("name", req.Name),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": "accepted",
	})
}

// scanFields screens each field with its kind-specific rules. Blocking
// findings reject the request outright; other findings reject it with
// the finding list, since the caller can correct those.
func (s *Server) scanFields(w http.ResponseWriter, r *http.Request, scans []fieldScan) bool {
	if !s.cfg.Security.Scanner.Enabled {
		return true
	}

	actor := auditlog.ActorFromContext(r.Context())
	type fieldFinding struct {
		Field       string `json:"field"`
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	}
	var soft []fieldFinding

	for _, fs := range scans {
		outcome := s.scanner.Scan(fs.value, threat.Context{
			Kind:     fs.kind,
			Origin:   threat.OriginAPI,
			Field:    fs.field,
			UserID:   actor.UserID,
			Role:     actor.Role,
			RemoteIP: clientIP(r),
			Strict:   s.cfg.Security.Scanner.Strict,
		})
		recordScanMetrics(string(fs.kind), outcome)

		if outcome.RequiresBlocking() {
			s.auditThreat(r, fs.field, outcome)
			writeAppError(w, errs.ErrThreatDetected)
			return false
		}
		for _, f := range outcome.Findings {
			soft = append(soft, fieldFinding{
				Field:       fs.field,
				Category:    string(f.Category),
				Severity:    f.Severity.String(),
				Description: f.Description,
			})
		}
	}

	if len(soft) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    errorBody{Code: "VALIDATION_FAILED", Message: "one or more fields failed validation"},
			"findings": soft,
		})
		return false
	}
	return true
}

// scanRequest lets operators test inputs against the scanner.
type scanRequest struct {
	Value string `json:"value"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, errs.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return
	}

	kind := threat.InputKind(req.Kind)
	if req.Kind == "" {
		kind = threat.KindFreeText
	}

	outcome := s.scanner.Scan(req.Value, threat.Context{
		Kind:     kind,
		Origin:   threat.OriginAPI,
		Field:    "value",
		RemoteIP: clientIP(r),
	})

	type findingOut struct {
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		Description string `json:"description"`
	}
	findings := make([]findingOut, 0, len(outcome.Findings))
	for _, f := range outcome.Findings {
		findings = append(findings, findingOut{
			Category:    string(f.Category),
			Severity:    f.Severity.String(),
			Description: f.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    outcome.Valid,
		"findings": findings,
	})
}

type unblockRequest struct {
	Subject string `json:"subject"`
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		writeAppError(w, errs.NewValidationError("INVALID_REQUEST", "subject is required"))
		return
	}

	if err := s.limiter.Unblock(r.Context(), req.Subject); err != nil {
		if errors.Is(err, errs.ErrBlockNotFound) {
			writeAppError(w, errs.ErrBlockNotFound)
			return
		}
		s.logger.Error("unblock failed", zap.String("subject", req.Subject), zap.Error(err))
		writeAppError(w, errs.NewInternalError("failed to lift block"))
		return
	}

	event := audit.NewEvent(audit.CategoryAdminAction, "unblock", audit.OutcomeSuccess, "block lifted")
	event.Details = map[string]interface{}{"subject": req.Subject}
	_ = s.recorder.Record(r.Context(), event)

	writeJSON(w, http.StatusOK, map[string]string{"status": "unblocked", "subject": req.Subject})
}

// handleCategories exposes the scanner's category catalog with each
// category's classification, for security dashboards.
func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	type categoryOut struct {
		Category        string `json:"category"`
		DefaultSeverity string `json:"default_severity"`
		Injection       bool   `json:"injection"`
		FileRelated     bool   `json:"file_related"`
		Blocks          bool   `json:"blocks"`
	}
	categories := threat.AllCategories()
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	out := make([]categoryOut, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryOut{
			Category:        string(c),
			DefaultSeverity: c.DefaultSeverity().String(),
			Injection:       c.IsInjection(),
			FileRelated:     c.IsFileRelated(),
			Blocks:          c.RequiresBlocking(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"categories": out})
}
