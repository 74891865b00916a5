package auditlog

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vaultmesh/backup-sentinel/internal/domain/audit"
	"github.com/vaultmesh/backup-sentinel/internal/domain/errors"
	"github.com/vaultmesh/backup-sentinel/internal/infrastructure/config"
	"github.com/vaultmesh/backup-sentinel/internal/metrics"
)

// Recorder accepts audit events and hands them to sinks, either
// synchronously or through a pool of workers with bounded queues.
//
// Events sharing a correlation ID are always routed to the same worker,
// so they reach the sinks in the order they were recorded. When a queue
// fills up the event is dropped and counted; an overloaded audit trail
// must not take the request path down with it.
type Recorder struct {
	cfg    config.AuditConfig
	logger *zap.Logger
	sinks  []Sink

	queues  []chan *audit.Event
	nextQ   atomic.Uint32
	depth   atomic.Int64
	dropped atomic.Int64
	stopped atomic.Bool
	wg      sync.WaitGroup

	// mu orders queue sends against Stop closing the queues; a send may
	// only happen while the stopped flag is observed false under the
	// read lock.
	mu sync.RWMutex
}

// NewRecorder creates a Recorder writing to the given sinks. Call Start
// before recording when async mode is enabled.
func NewRecorder(cfg config.AuditConfig, logger *zap.Logger, sinks ...Sink) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		logger: logger,
		sinks:  sinks,
	}

	if cfg.Async {
		workers := cfg.Workers
		if workers < 1 {
			workers = 1
		}
		perQueue := cfg.QueueSize / workers
		if perQueue < 1 {
			perQueue = 1
		}
		r.queues = make([]chan *audit.Event, workers)
		for i := range r.queues {
			r.queues[i] = make(chan *audit.Event, perQueue)
		}
	}

	return r
}

// Start launches the worker pool. It is a no-op in sync mode.
func (r *Recorder) Start() {
	for i, q := range r.queues {
		r.wg.Add(1)
		go r.worker(i, q)
	}
}

// Record submits an event. In sync mode the sinks are invoked before
// Record returns. In async mode the event is queued; if the queue for
// its correlation ID is full the event is dropped.
func (r *Recorder) Record(ctx context.Context, event *audit.Event) error {
	if !r.cfg.Enabled {
		return nil
	}
	if r.stopped.Load() {
		return errors.ErrRecorderStopped
	}

	applyAmbient(ctx, event)
	if days, ok := r.cfg.RetentionOverrides[string(event.Category)]; ok {
		event.Compliance.RetentionDays = days
	}
	metrics.AuditRecorded.WithLabelValues(string(event.Category), string(event.Outcome)).Inc()

	if !r.cfg.Async {
		r.dispatch(event)
		return nil
	}

	q := r.queueFor(event.CorrelationID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped.Load() {
		return errors.ErrRecorderStopped
	}
	select {
	case q <- event:
		metrics.AuditQueueDepth.Set(float64(r.depth.Add(1)))
		return nil
	default:
		n := r.dropped.Add(1)
		metrics.AuditDropped.Inc()
		r.logger.Warn("audit queue full, event dropped",
			zap.String("event_id", event.ID.String()),
			zap.String("category", string(event.Category)),
			zap.Int64("total_dropped", n),
		)
		return nil
	}
}

// Stop drains the queues and shuts the workers down. Events still
// queued when the drain timeout expires are lost; the count is logged.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timeout := r.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	select {
	case <-done:
		r.logger.Info("audit recorder stopped", zap.Int64("dropped_total", r.dropped.Load()))
		return nil
	case <-time.After(timeout):
		remaining := r.depth.Load()
		r.logger.Error("audit drain timed out",
			zap.Int64("events_remaining", remaining),
		)
		return errors.NewInternalError("audit drain timed out").WithDetails(map[string]interface{}{
			"events_remaining": remaining,
		})
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events have been discarded because of full
// queues since the recorder started.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// queueFor picks the worker queue for a correlation ID. Events without
// one are spread round-robin.
func (r *Recorder) queueFor(correlationID string) chan *audit.Event {
	if correlationID == "" {
		return r.queues[r.nextQ.Add(1)%uint32(len(r.queues))]
	}
	h := fnv.New32a()
	h.Write([]byte(correlationID))
	return r.queues[h.Sum32()%uint32(len(r.queues))]
}

func (r *Recorder) worker(id int, q chan *audit.Event) {
	defer r.wg.Done()

	logger := r.logger.With(zap.Int("audit_worker", id))
	logger.Debug("audit worker started")

	for event := range q {
		metrics.AuditQueueDepth.Set(float64(r.depth.Add(-1)))
		r.dispatch(event)
	}

	logger.Debug("audit worker stopped")
}

// dispatch writes an event to every sink. Sink failures are logged and
// swallowed; audit trouble never propagates to callers.
func (r *Recorder) dispatch(event *audit.Event) {
	for _, sink := range r.sinks {
		if err := sink.Write(event); err != nil {
			r.logger.Error("audit sink write failed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err),
			)
		}
	}
}
