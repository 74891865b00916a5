package admission

import "time"

// EndpointClass groups endpoints that share a rate limit budget.
type EndpointClass string

const (
	ClassGeneral EndpointClass = "general"
	ClassAuth    EndpointClass = "auth"
	ClassAdmin   EndpointClass = "admin"
	ClassBackup  EndpointClass = "backup"
)

// Scope identifies which limit produced a decision.
type Scope string

const (
	ScopeIPMinute   Scope = "ip_minute"
	ScopeIPHour     Scope = "ip_hour"
	ScopeIPDay      Scope = "ip_day"
	ScopeUserMinute Scope = "user_minute"
	ScopeEndpoint   Scope = "endpoint"
	ScopeBlocked    Scope = "blocked"
	ScopeWhitelist  Scope = "whitelist"
)

// Request describes one inbound request to admit or deny.
type Request struct {
	RemoteIP string
	UserID   string
	Endpoint string
	Class    EndpointClass
}

// Decision is the admission verdict for a request. When Allowed is
// false, Reason is a human-readable denial cause and RetryAfter tells
// the caller how long to back off.
type Decision struct {
	Allowed    bool
	Scope      Scope
	Reason     string
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(scope Scope, reason string, limit int, resetAt time.Time) Decision {
	retryAfter := time.Until(resetAt)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{
		Allowed:    false,
		Scope:      scope,
		Reason:     reason,
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}
