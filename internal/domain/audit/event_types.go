package audit

import "time"

// Category represents the high-level category of an audit event
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategorySecurityThreat Category = "security_threat"
	CategoryConfigChange   Category = "configuration_change"
	CategoryAdminAction    Category = "administrative_action"
	CategoryDataAccess     Category = "data_access"
	CategoryDataExport     Category = "data_export"
	CategoryDataImport     Category = "data_import"
	CategoryBackup         Category = "backup_operation"
	CategorySystem         Category = "system"
	CategoryNetworkAccess  Category = "network_access"
	CategoryError          Category = "error"
	CategoryCompliance     Category = "compliance"
	CategoryAuditAccess    Category = "audit_log_access"
)

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// retentionDays maps categories to their compliance retention period.
// Authentication trails are kept one year, security threats and
// administrative actions seven years; everything else defaults to 90 days.
var retentionDays = map[Category]int{
	CategoryAuthentication: 365,
	CategoryAuthorization:  365,
	CategorySecurityThreat: 2555,
	CategoryAdminAction:    2555,
	CategoryCompliance:     2555,
	CategoryAuditAccess:    730,
}

// RetentionDays returns the retention period for events of this category.
func (c Category) RetentionDays() int {
	if days, ok := retentionDays[c]; ok {
		return days
	}
	return 90
}

// complianceFrameworks maps categories to the framework that mandates their
// retention, when one does.
var complianceFrameworks = map[Category]string{
	CategoryAuthentication: "SOC2",
	CategoryAuthorization:  "SOC2",
	CategorySecurityThreat: "SOC2",
	CategoryAdminAction:    "SOX",
	CategoryDataExport:     "GDPR",
	CategoryDataImport:     "GDPR",
	CategoryCompliance:     "SOC2",
	CategoryAuditAccess:    "SOC2",
}

// ComplianceFramework returns the framework name governing this category,
// or empty when none applies.
func (c Category) ComplianceFramework() string {
	return complianceFrameworks[c]
}

// Outcome represents how the audited operation concluded.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeFailure             Outcome = "failure"
	OutcomeBlocked             Outcome = "blocked"
	OutcomeDenied              Outcome = "denied"
	OutcomeTimeout             Outcome = "timeout"
	OutcomeCancelled           Outcome = "cancelled"
	OutcomeInProgress          Outcome = "in_progress"
	OutcomeSuccessWithWarnings Outcome = "success_with_warnings"
	OutcomeRetry               Outcome = "retry"
	OutcomeSkipped             Outcome = "skipped"
	OutcomeUnknown             Outcome = "unknown"
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	return string(o)
}

type outcomeProfile struct {
	Severity              Severity
	RequiresInvestigation bool
}

var outcomeProfiles = map[Outcome]outcomeProfile{
	OutcomeSuccess:             {SeverityLow, false},
	OutcomeFailure:             {SeverityMedium, true},
	OutcomeBlocked:             {SeverityHigh, true},
	OutcomeDenied:              {SeverityMedium, true},
	OutcomeTimeout:             {SeverityMedium, false},
	OutcomeCancelled:           {SeverityLow, false},
	OutcomeInProgress:          {SeverityLow, false},
	OutcomeSuccessWithWarnings: {SeverityLow, false},
	OutcomeRetry:               {SeverityLow, false},
	OutcomeSkipped:             {SeverityLow, false},
	OutcomeUnknown:             {SeverityMedium, true},
}

// ImpliedSeverity returns the severity an outcome carries by default.
func (o Outcome) ImpliedSeverity() Severity {
	if p, ok := outcomeProfiles[o]; ok {
		return p.Severity
	}
	return SeverityMedium
}

// RequiresInvestigation reports whether events with this outcome should be
// queued for analyst review.
func (o Outcome) RequiresInvestigation() bool {
	if p, ok := outcomeProfiles[o]; ok {
		return p.RequiresInvestigation
	}
	return true
}

// Severity levels for audit events
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of the severity
func (s Severity) String() string {
	return string(s)
}

// Level returns a numeric level for the severity (higher = more severe)
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsAtLeast returns true if this severity is at least as severe as the other
func (s Severity) IsAtLeast(other Severity) bool {
	return s.Level() >= other.Level()
}

type severityProfile struct {
	ResponseSLA          time.Duration
	RequiresNotification bool
}

var severityProfiles = map[Severity]severityProfile{
	SeverityLow:      {72 * time.Hour, false},
	SeverityMedium:   {24 * time.Hour, false},
	SeverityHigh:     {time.Hour, true},
	SeverityCritical: {15 * time.Minute, true},
}

// ResponseSLA returns the maximum time within which events of this severity
// must be responded to.
func (s Severity) ResponseSLA() time.Duration {
	if p, ok := severityProfiles[s]; ok {
		return p.ResponseSLA
	}
	return 24 * time.Hour
}

// RequiresNotification reports whether this severity triggers operator
// notification.
func (s Severity) RequiresNotification() bool {
	return severityProfiles[s].RequiresNotification
}
