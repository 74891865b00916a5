package threat

// Finding is one detected threat instance for a single input.
type Finding struct {
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// NewFinding creates a finding with the category's default severity.
func NewFinding(category Category, description string) Finding {
	return Finding{
		Category:    category,
		Description: description,
		Severity:    category.DefaultSeverity(),
	}
}

// Outcome is the result of scanning one value. It is invalid exactly when
// at least one finding exists.
type Outcome struct {
	Valid    bool      `json:"valid"`
	Findings []Finding `json:"findings,omitempty"`
}

func newOutcome(findings []Finding) Outcome {
	return Outcome{
		Valid:    len(findings) == 0,
		Findings: findings,
	}
}

// HighestSeverity returns the most severe finding severity, or SeverityLow
// when the outcome is valid.
func (o Outcome) HighestSeverity() Severity {
	highest := SeverityLow
	for _, f := range o.Findings {
		if f.Severity.IsAtLeast(highest) {
			highest = f.Severity
		}
	}
	return highest
}

// HasCategory reports whether any finding carries the given category.
func (o Outcome) HasCategory(category Category) bool {
	for _, f := range o.Findings {
		if f.Category == category {
			return true
		}
	}
	return false
}

// HasInjection reports whether any finding is in the injection family.
func (o Outcome) HasInjection() bool {
	for _, f := range o.Findings {
		if f.Category.IsInjection() {
			return true
		}
	}
	return false
}

// RequiresBlocking reports whether any finding demands rejection.
func (o Outcome) RequiresBlocking() bool {
	for _, f := range o.Findings {
		if f.Category.RequiresBlocking() {
			return true
		}
	}
	return false
}

// RequiresAudit reports whether any finding demands an audit event.
func (o Outcome) RequiresAudit() bool {
	for _, f := range o.Findings {
		if f.Category.RequiresAudit() {
			return true
		}
	}
	return false
}

// RequiresNotification reports whether any finding demands a security team
// notification.
func (o Outcome) RequiresNotification() bool {
	for _, f := range o.Findings {
		if f.Category.RequiresNotification() {
			return true
		}
	}
	return false
}
