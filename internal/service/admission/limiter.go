package admission

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
	"github.com/vaultmesh/backup-sentinel/internal/metrics"
)

// Denial reasons surfaced to clients.
const (
	ReasonPerMinute = "too many requests per minute"
	ReasonPerHour   = "too many requests per hour"
	ReasonPerDay    = "too many requests per day"
	ReasonBlocked   = "temporarily blocked due to repeated violations"
)

// Limiter enforces layered request rate limits backed by Redis. Limits
// apply per IP across three windows, per authenticated user, and per
// endpoint class. Subjects that keep violating limits get blocked for a
// cooldown period.
//
// A failed block lookup denies the request: if we cannot tell whether
// a subject is blocked, we will not wave it through. Counter failures
// past that point fall back to in-process token buckets instead of
// rejecting traffic, so a full Redis outage fails closed at the block
// check and the buckets only serve partial failures.
type Limiter struct {
	store     *Store
	whitelist *Whitelist
	cfg       config.RateLimitConfig
	logger    *zap.Logger
	tracer    trace.Tracer

	// local token buckets used while Redis is down
	local sync.Map
}

// NewLimiter creates a Limiter with the given store and configuration.
func NewLimiter(store *Store, cfg config.RateLimitConfig, logger *zap.Logger) *Limiter {
	return &Limiter{
		store:     store,
		whitelist: NewWhitelist(cfg.WhitelistCIDRs),
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("service.admission"),
	}
}

// Admit decides whether a request may proceed. Checks run in order:
// active blocks, whitelist, per-IP windows from shortest to longest,
// per-user window, then the endpoint class budget. The first exceeded
// limit denies the request and counts as a violation.
func (l *Limiter) Admit(ctx context.Context, req Request) Decision {
	if !l.cfg.Enabled {
		return allow()
	}

	ctx, span := l.tracer.Start(ctx, "admission.admit",
		trace.WithAttributes(
			attribute.String("remote_ip", req.RemoteIP),
			attribute.String("endpoint_class", string(req.Class)),
		),
	)
	defer span.End()

	if d, denied := l.checkBlocks(ctx, req); denied {
		span.SetAttributes(attribute.Bool("allowed", false), attribute.String("scope", string(d.Scope)))
		metrics.AdmissionDecisions.WithLabelValues(string(d.Scope), "denied").Inc()
		return d
	}

	if l.whitelist.Contains(req.RemoteIP) {
		metrics.AdmissionDecisions.WithLabelValues(string(ScopeWhitelist), "allowed").Inc()
		return allow()
	}

	checks := []limitCheck{
		{ScopeIPMinute, "ip:" + req.RemoteIP + ":m", l.cfg.PerIPPerMinute, time.Minute, ReasonPerMinute, "ip:" + req.RemoteIP},
		{ScopeIPHour, "ip:" + req.RemoteIP + ":h", l.cfg.PerIPPerHour, time.Hour, ReasonPerHour, "ip:" + req.RemoteIP},
		{ScopeIPDay, "ip:" + req.RemoteIP + ":d", l.cfg.PerIPPerDay, 24 * time.Hour, ReasonPerDay, "ip:" + req.RemoteIP},
	}
	if req.UserID != "" {
		checks = append(checks, limitCheck{
			ScopeUserMinute, "user:" + req.UserID + ":m", l.cfg.PerUserPerMinute, time.Minute, ReasonPerMinute, "user:" + req.UserID,
		})
	}
	checks = append(checks, l.endpointCheck(req))

	for _, c := range checks {
		d, err := l.checkWindow(ctx, c)
		if err != nil {
			// Redis outage: serve the decision from a local bucket.
			metrics.AdmissionFallbacks.Inc()
			d = l.fallbackToLocal(c)
		}
		if !d.Allowed {
			span.SetAttributes(attribute.Bool("allowed", false), attribute.String("scope", string(c.scope)))
			metrics.AdmissionDecisions.WithLabelValues(string(c.scope), "denied").Inc()
			l.recordViolation(ctx, c.violationSubject, d.Reason)
			return d
		}
	}

	span.SetAttributes(attribute.Bool("allowed", true))
	metrics.AdmissionDecisions.WithLabelValues("all", "allowed").Inc()
	return allow()
}

// Unblock lifts an active block and clears the subject's violation
// tally so the next violation starts a fresh count.
func (l *Limiter) Unblock(ctx context.Context, subject string) error {
	if err := l.store.RemoveBlock(ctx, subject); err != nil {
		return err
	}
	if err := l.store.ResetCounters(ctx, subject); err != nil {
		return err
	}
	l.logger.Info("subject unblocked", zap.String("subject", subject))
	return nil
}

type limitCheck struct {
	scope            Scope
	key              string
	limit            int
	window           time.Duration
	reason           string
	violationSubject string
}

func (l *Limiter) endpointCheck(req Request) limitCheck {
	subject := "ip:" + req.RemoteIP
	switch req.Class {
	case ClassAuth:
		return limitCheck{ScopeEndpoint, "ep:auth:" + req.RemoteIP, l.cfg.AuthEndpointPerMinute, time.Minute, ReasonPerMinute, subject}
	case ClassAdmin:
		return limitCheck{ScopeEndpoint, "ep:admin:" + req.RemoteIP, l.cfg.AdminEndpointPerMinute, time.Minute, ReasonPerMinute, subject}
	case ClassBackup:
		return limitCheck{ScopeEndpoint, "ep:backup:" + req.RemoteIP, l.cfg.BackupEndpointPerHour, time.Hour, ReasonPerHour, subject}
	default:
		return limitCheck{ScopeEndpoint, "ep:general:" + req.RemoteIP, l.cfg.GeneralEndpointPerMinute, time.Minute, ReasonPerMinute, subject}
	}
}

func (l *Limiter) checkWindow(ctx context.Context, c limitCheck) (Decision, error) {
	count, resetAt, err := l.store.IncrWindow(ctx, c.key, c.window)
	if err != nil {
		return Decision{}, err
	}

	if count > int64(c.limit) {
		return deny(c.scope, c.reason, c.limit, resetAt), nil
	}

	d := allow()
	d.Limit = c.limit
	d.Remaining = c.limit - int(count)
	d.ResetAt = resetAt
	return d, nil
}

// checkBlocks looks for active blocks on the request's IP and user. A
// lookup failure denies the request: we will not wave traffic through
// when we cannot tell whether its source is blocked.
func (l *Limiter) checkBlocks(ctx context.Context, req Request) (Decision, bool) {
	subjects := []string{"ip:" + req.RemoteIP}
	if req.UserID != "" {
		subjects = append(subjects, "user:"+req.UserID)
	}

	for _, subject := range subjects {
		reason, remaining, found, err := l.store.GetBlock(ctx, subject)
		if err != nil {
			l.logger.Error("block lookup failed, denying request",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return deny(ScopeBlocked, ReasonBlocked, 0, time.Now().Add(l.cfg.BlockDuration)), true
		}
		if found {
			l.logger.Debug("request from blocked subject",
				zap.String("subject", subject),
				zap.String("block_reason", reason),
				zap.Duration("remaining", remaining),
			)
			d := deny(ScopeBlocked, ReasonBlocked, 0, time.Now().Add(remaining))
			d.RetryAfter = remaining
			return d, true
		}
	}
	return Decision{}, false
}

// recordViolation tallies a denial against its subject and blocks the
// subject once the tally crosses the configured threshold. Failures
// here never affect the already-made denial.
func (l *Limiter) recordViolation(ctx context.Context, subject, reason string) {
	count, err := l.store.IncrViolation(ctx, subject, l.cfg.ViolationPeriod)
	if err != nil {
		l.logger.Warn("violation tally failed",
			zap.String("subject", subject),
			zap.Error(err),
		)
		return
	}

	if count >= int64(l.cfg.ViolationThreshold) {
		if err := l.store.SetBlock(ctx, subject, reason, l.cfg.BlockDuration); err != nil {
			l.logger.Error("failed to block subject",
				zap.String("subject", subject),
				zap.Error(err),
			)
			return
		}
		subjectType := "ip"
		if len(subject) > 5 && subject[:5] == "user:" {
			subjectType = "user"
		}
		metrics.AdmissionBlocks.WithLabelValues(subjectType).Inc()
		l.logger.Warn("subject blocked after repeated violations",
			zap.String("subject", subject),
			zap.Int64("violations", count),
			zap.Duration("block_duration", l.cfg.BlockDuration),
		)
	}
}

// fallbackToLocal serves a decision from an in-process token bucket
// sized to the check's window limit. State here is per instance, so
// limits are approximate until Redis comes back.
func (l *Limiter) fallbackToLocal(c limitCheck) Decision {
	limiterAny, _ := l.local.LoadOrStore(c.key, rate.NewLimiter(
		rate.Limit(float64(c.limit)/c.window.Seconds()),
		c.limit,
	))
	bucket := limiterAny.(*rate.Limiter)

	if bucket.Allow() {
		d := allow()
		d.Limit = c.limit
		d.Remaining = int(bucket.Tokens())
		return d
	}
	return deny(c.scope, c.reason, c.limit, time.Now().Add(c.window))
}
