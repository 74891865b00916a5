package audit

import (
	"time"

	"github.com/google/uuid"
)

// Actor identifies who performed the audited operation.
type Actor struct {
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Network carries the request's network context.
type Network struct {
	RemoteIP  string `json:"remote_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ComplianceTags record the retention obligations derived from the event's
// category at construction time.
type ComplianceTags struct {
	Framework     string `json:"framework,omitempty"`
	RetentionDays int    `json:"retention_days"`
}

// Event is one audit record. Severity is assigned at construction and never
// changes; corrections are new events, not mutations.
type Event struct {
	ID            uuid.UUID `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	Category Category `json:"category"`
	Subtype  string   `json:"subtype"`
	Outcome  Outcome  `json:"outcome"`
	Severity Severity `json:"severity"`

	Actor   Actor   `json:"actor"`
	Network Network `json:"network"`

	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	Compliance ComplianceTags `json:"compliance"`
}

// NewEvent creates an event with the severity implied by the outcome and
// the compliance tags derived from the category. Optional fields are set
// directly on the returned value before it is recorded.
func NewEvent(category Category, subtype string, outcome Outcome, message string) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Subtype:   subtype,
		Outcome:   outcome,
		Severity:  outcome.ImpliedSeverity(),
		Message:   message,
		Compliance: ComplianceTags{
			Framework:     category.ComplianceFramework(),
			RetentionDays: category.RetentionDays(),
		},
	}
}

// NewEventWithSeverity creates an event whose severity overrides the
// outcome-implied default. Used when the source already classified the
// incident, such as a threat finding.
func NewEventWithSeverity(category Category, subtype string, outcome Outcome, severity Severity, message string) *Event {
	e := NewEvent(category, subtype, outcome, message)
	e.Severity = severity
	return e
}

// RetentionExpiry returns when this event falls out of its retention window.
func (e *Event) RetentionExpiry() time.Time {
	return e.Timestamp.AddDate(0, 0, e.Compliance.RetentionDays)
}

// RequiresInvestigation reports whether the event should be queued for
// analyst review, from its outcome.
func (e *Event) RequiresInvestigation() bool {
	return e.Outcome.RequiresInvestigation()
}
