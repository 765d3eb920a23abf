package labcore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuditSink receives every permission decision and job transition. Sinks
// must treat events as write-once; the core never retracts an event.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

// AuditStore persists audit events (external collaborator).
type AuditStore interface {
	AppendAudit(ctx context.Context, ev AuditEvent) error
}

// NopSink discards events. Useful when wiring tests that don't assert audit.
type NopSink struct{}

func (NopSink) Record(context.Context, AuditEvent) {}

// MemorySink buffers events in memory, in arrival order.
type MemorySink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns a snapshot copy of the recorded events.
func (s *MemorySink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

const auditBufferSize = 10_000

// AuditMetrics counts sink outcomes. Implementations must be safe for
// concurrent use.
type AuditMetrics interface {
	AuditWritten()
	AuditDropped()
}

// StoreSink persists events asynchronously through a single worker, so
// delivery order matches emission order (and therefore per-job transition
// order). A full buffer drops the event with a warning rather than blocking
// a valid state transition.
type StoreSink struct {
	store   AuditStore
	log     *zap.Logger
	metrics AuditMetrics
	entries chan AuditEvent
	done    chan struct{}
}

// NewStoreSink starts the sink's worker. metrics may be nil.
func NewStoreSink(store AuditStore, log *zap.Logger, metrics AuditMetrics) *StoreSink {
	return newStoreSink(store, log, metrics, auditBufferSize)
}

func newStoreSink(store AuditStore, log *zap.Logger, metrics AuditMetrics, buffer int) *StoreSink {
	s := &StoreSink{
		store:   store,
		log:     log,
		metrics: metrics,
		entries: make(chan AuditEvent, buffer),
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *StoreSink) Record(_ context.Context, ev AuditEvent) {
	select {
	case s.entries <- ev:
	default:
		if s.metrics != nil {
			s.metrics.AuditDropped()
		}
		s.log.Warn("audit buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("subject", ev.Subject),
		)
	}
}

// Shutdown drains the buffer, waiting up to ten seconds.
func (s *StoreSink) Shutdown() {
	close(s.entries)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("audit sink shutdown timed out; some events may be lost")
	}
}

func (s *StoreSink) worker() {
	defer close(s.done)
	for ev := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.AppendAudit(ctx, ev); err != nil {
			s.log.Error("failed to persist audit event", zap.Error(err),
				zap.String("subject", ev.Subject))
		} else if s.metrics != nil {
			s.metrics.AuditWritten()
		}
		cancel()
	}
}

func newAuditEvent(t AuditEventType, actor Principal, subject, outcome, reason string) AuditEvent {
	return AuditEvent{
		ID:        uuid.New(),
		Type:      t,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Subject:   subject,
		Outcome:   outcome,
		Reason:    reason,
		At:        time.Now().UTC(),
	}
}
