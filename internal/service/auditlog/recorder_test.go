package auditlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	"github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
)

// captureSink records every event it receives, in arrival order.
type captureSink struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (s *captureSink) Write(event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) all() []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*audit.Event{}, s.events...)
}

// blockingSink parks on a channel until released.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Write(*audit.Event) error {
	<-s.release
	return nil
}

func syncAuditConfig() config.AuditConfig {
	return config.AuditConfig{Enabled: true, Async: false}
}

func asyncAuditConfig(workers, queueSize int) config.AuditConfig {
	return config.AuditConfig{
		Enabled:      true,
		Async:        true,
		Workers:      workers,
		QueueSize:    queueSize,
		DrainTimeout: 5 * time.Second,
	}
}

func TestRecorderSyncMode(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(syncAuditConfig(), zaptest.NewLogger(t), sink)

	event := audit.NewEvent(audit.CategoryAuthentication, "login", audit.OutcomeSuccess, "user logged in")
	require.NoError(t, r.Record(context.Background(), event))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
}

func TestRecorderDisabled(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(config.AuditConfig{Enabled: false}, zaptest.NewLogger(t), sink)

	event := audit.NewEvent(audit.CategorySystem, "startup", audit.OutcomeSuccess, "service started")
	require.NoError(t, r.Record(context.Background(), event))
	assert.Empty(t, sink.all())
}

func TestRecorderCorrelationOrdering(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(asyncAuditConfig(4, 400), zaptest.NewLogger(t), sink)
	r.Start()

	const n = 50
	ctx := context.Background()
	for i := 0; i < n; i++ {
		event := audit.NewEvent(audit.CategoryBackup, "snapshot", audit.OutcomeSuccess,
			fmt.Sprintf("step %d", i))
		event.CorrelationID = "job-42"
		require.NoError(t, r.Record(ctx, event))
	}
	require.NoError(t, r.Stop(ctx))

	events := sink.all()
	require.Len(t, events, n)
	for i, event := range events {
		assert.Equal(t, fmt.Sprintf("step %d", i), event.Message)
	}
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	blocking := &blockingSink{release: make(chan struct{})}
	r := NewRecorder(asyncAuditConfig(1, 2), zaptest.NewLogger(t), blocking)
	r.Start()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		event := audit.NewEvent(audit.CategorySystem, "tick", audit.OutcomeSuccess, "tick")
		event.CorrelationID = "same"
		require.NoError(t, r.Record(ctx, event))
	}

	assert.Greater(t, r.Dropped(), int64(0))

	close(blocking.release)
	require.NoError(t, r.Stop(ctx))
}

func TestRecorderStoppedRejectsEvents(t *testing.T) {
	r := NewRecorder(asyncAuditConfig(1, 10), zaptest.NewLogger(t), &captureSink{})
	r.Start()
	require.NoError(t, r.Stop(context.Background()))

	err := r.Record(context.Background(), audit.NewEvent(audit.CategorySystem, "tick", audit.OutcomeSuccess, "tick"))
	assert.ErrorIs(t, err, errors.ErrRecorderStopped)
}

func TestRecorderStopDuringConcurrentRecords(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(asyncAuditConfig(2, 64), zaptest.NewLogger(t), sink)
	r.Start()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				err := r.Record(context.Background(),
					audit.NewEvent(audit.CategorySystem, "tick", audit.OutcomeSuccess, "tick"))
				if err != nil {
					assert.ErrorIs(t, err, errors.ErrRecorderStopped)
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))
	close(done)
	wg.Wait()
}

func TestRecorderAmbientContext(t *testing.T) {
	sink := &captureSink{}
	r := NewRecorder(syncAuditConfig(), zaptest.NewLogger(t), sink)

	ctx := WithCorrelationID(context.Background(), "req-7")
	ctx = WithActor(ctx, audit.Actor{UserID: "u-1", Username: "alice", Role: "admin"})
	ctx = WithNetwork(ctx, audit.Network{RemoteIP: "203.0.113.9"})

	require.NoError(t, r.Record(ctx, audit.NewEvent(audit.CategoryDataAccess, "read", audit.OutcomeSuccess, "config read")))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "req-7", events[0].CorrelationID)
	assert.Equal(t, "alice", events[0].Actor.Username)
	assert.Equal(t, "203.0.113.9", events[0].Network.RemoteIP)

	cleared := ClearAmbient(ctx)
	require.NoError(t, r.Record(cleared, audit.NewEvent(audit.CategorySystem, "tick", audit.OutcomeSuccess, "tick")))

	events = sink.all()
	require.Len(t, events, 2)
	assert.Empty(t, events[1].CorrelationID)
	assert.Empty(t, events[1].Actor.Username)
}

func TestRecorderRetentionOverride(t *testing.T) {
	sink := &captureSink{}
	cfg := syncAuditConfig()
	cfg.RetentionOverrides = map[string]int{string(audit.CategoryAuthentication): 30}
	r := NewRecorder(cfg, zaptest.NewLogger(t), sink)

	require.NoError(t, r.Record(context.Background(),
		audit.NewEvent(audit.CategoryAuthentication, "login", audit.OutcomeSuccess, "user logged in")))
	require.NoError(t, r.Record(context.Background(),
		audit.NewEvent(audit.CategorySecurityThreat, "input_scan", audit.OutcomeBlocked, "payload rejected")))

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, 30, events[0].Compliance.RetentionDays)
	assert.Equal(t, audit.CategorySecurityThreat.RetentionDays(), events[1].Compliance.RetentionDays)
}

func TestJSONSinkMarshalFallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewJSONSink(zap.New(core))

	event := audit.NewEvent(audit.CategoryError, "panic", audit.OutcomeFailure, "handler panic")
	event.Details = map[string]interface{}{"ch": make(chan int)}

	require.NoError(t, sink.Write(event))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Message, "audit event="))
	assert.Contains(t, entries[0].Message, "outcome=failure")
}

func TestJSONSinkWritesJSON(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewJSONSink(zap.New(core))

	event := audit.NewEvent(audit.CategoryAuthentication, "login", audit.OutcomeDenied, "bad credentials")
	require.NoError(t, sink.Write(event))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, `"category":"authentication"`)
	assert.Contains(t, entries[0].Message, `"outcome":"denied"`)
}

func TestAlertSinkCooldown(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := NewAlertSink(zap.New(core), time.Minute)

	for i := 0; i < 5; i++ {
		event := audit.NewEventWithSeverity(audit.CategorySecurityThreat, "injection", audit.OutcomeBlocked,
			audit.SeverityCritical, "sql injection attempt")
		require.NoError(t, sink.Write(event))
	}

	assert.Equal(t, 1, logs.Len())
}

func TestAlertSinkIgnoresLowSeverity(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := NewAlertSink(zap.New(core), time.Minute)

	event := audit.NewEvent(audit.CategorySystem, "tick", audit.OutcomeSuccess, "routine")
	require.NoError(t, sink.Write(event))
	assert.Equal(t, 0, logs.Len())
}
