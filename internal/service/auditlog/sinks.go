package auditlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	"github.com/vaultmesh/backup-sentinel/internal/metrics"
)

// Sink receives completed audit events.
type Sink interface {
	Write(event *audit.Event) error
}

// JSONSink emits each event as a single JSON log line through zap. If
// an event's details cannot be marshaled, a flat text line with the
// core fields is written instead so the event is never lost.
type JSONSink struct {
	logger *zap.Logger
}

// NewJSONSink creates a sink writing to the given logger under the
// "audit" name.
func NewJSONSink(logger *zap.Logger) *JSONSink {
	return &JSONSink{logger: logger.Named("audit")}
}

func (s *JSONSink) Write(event *audit.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Info(fmt.Sprintf(
			"audit event=%s category=%s subtype=%s outcome=%s severity=%s actor=%s correlation=%s message=%q",
			event.ID, event.Category, event.Subtype, event.Outcome,
			event.Severity, event.Actor.UserID, event.CorrelationID, event.Message,
		))
		return nil
	}

	s.logger.Info(string(data))
	return nil
}

// AlertSink raises alerts for high severity events. Alerts for the
// same category and severity are suppressed for a cooldown period so a
// burst of identical events produces one alert, not hundreds.
type AlertSink struct {
	logger   *zap.Logger
	cooldown time.Duration

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewAlertSink creates an alert sink with the given cooldown between
// repeated alerts for the same category and severity.
func NewAlertSink(logger *zap.Logger, cooldown time.Duration) *AlertSink {
	return &AlertSink{
		logger:    logger.Named("security_alerts"),
		cooldown:  cooldown,
		lastAlert: make(map[string]time.Time),
	}
}

func (s *AlertSink) Write(event *audit.Event) error {
	if !event.Severity.RequiresNotification() {
		return nil
	}

	key := string(event.Category) + ":" + string(event.Severity)

	s.mu.Lock()
	last, seen := s.lastAlert[key]
	now := time.Now()
	if seen && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		return nil
	}
	s.lastAlert[key] = now
	s.mu.Unlock()

	metrics.AuditAlerts.WithLabelValues(string(event.Severity)).Inc()
	s.logger.Error("security alert",
		zap.String("event_id", event.ID.String()),
		zap.String("category", string(event.Category)),
		zap.String("severity", string(event.Severity)),
		zap.String("outcome", string(event.Outcome)),
		zap.String("actor", event.Actor.UserID),
		zap.String("remote_ip", event.Network.RemoteIP),
		zap.String("message", event.Message),
		zap.Duration("response_sla", event.Severity.ResponseSLA()),
	)
	return nil
}
