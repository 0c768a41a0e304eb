package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/metrics"
)

const (
	defaultBuffer      = 256
	perRecordTimeout   = 5 * time.Second
	asyncSinkComponent = "audit.async"
)

// AsyncSink queues records for a downstream sink and writes them on a
// background goroutine. When the queue is full the record is dropped and
// counted rather than blocking the caller.
type AsyncSink struct {
	downstream domain.AuditSink

	mu     sync.RWMutex
	closed bool
	queue  chan *domain.AuditRecord
	wg     sync.WaitGroup
}

// NewAsyncSink starts the writer goroutine. Call Close to drain and stop it.
func NewAsyncSink(downstream domain.AuditSink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &AsyncSink{
		downstream: downstream,
		queue:      make(chan *domain.AuditRecord, buffer),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// RecordEvent enqueues rec and returns its id without waiting for the
// downstream write. The id is assigned here if rec has none.
func (s *AsyncSink) RecordEvent(ctx context.Context, rec *domain.AuditRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		metrics.AuditDroppedTotal.Inc()
		log.Warn().Str("component", asyncSinkComponent).Str("event_type", rec.EventType).Msg("audit: sink closed, record dropped")
		return rec.ID, nil
	}

	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case s.queue <- rec:
	default:
		metrics.AuditDroppedTotal.Inc()
		log.Warn().Str("component", asyncSinkComponent).Str("event_type", rec.EventType).Msg("audit: queue full, record dropped")
	}
	return rec.ID, nil
}

// Close stops accepting records, writes what is queued and waits for the
// writer to exit.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AsyncSink) loop() {
	defer s.wg.Done()
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), perRecordTimeout)
		if _, err := s.downstream.RecordEvent(ctx, rec); err != nil {
			metrics.AuditFailuresTotal.Inc()
			log.Error().Err(err).
				Str("component", asyncSinkComponent).
				Str("event_type", rec.EventType).
				Str("audit_id", rec.ID.String()).
				Msg("audit: downstream write failed")
		}
		cancel()
	}
}
