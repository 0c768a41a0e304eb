// Package audit adapts gateway events to the external audit sink.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/metrics"
)

// Emitter routes audit records to the sink. Durable records are written
// before Emit returns; the rest go through the async queue when one is
// configured.
type Emitter struct {
	sink  domain.AuditSink
	async domain.AuditSink
	now   func() time.Time
}

// NewEmitter creates an Emitter. async may be nil, in which case every
// record is written synchronously.
func NewEmitter(sink domain.AuditSink, async domain.AuditSink) *Emitter {
	return &Emitter{sink: sink, async: async, now: time.Now}
}

// Emit records rec and returns its id. Sink failures are logged and
// returned, but callers treat them as non-fatal to the audited operation.
func (e *Emitter) Emit(ctx context.Context, rec *domain.AuditRecord, durable bool) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.now().UTC()
	}

	target := e.async
	if durable || target == nil {
		target = e.sink
		// The caller's cancellation must not lose a durable record.
		ctx = context.WithoutCancel(ctx)
	}

	id, err := target.RecordEvent(ctx, rec)
	if err != nil {
		metrics.AuditFailuresTotal.Inc()
		log.Error().Err(err).
			Str("event_type", rec.EventType).
			Str("audit_id", rec.ID.String()).
			Bool("durable", durable).
			Msg("audit: record event")
		return rec.ID, fmt.Errorf("audit.Emit: %w", err)
	}
	return id, nil
}

// SinkFunc adapts a function to domain.AuditSink.
type SinkFunc func(ctx context.Context, rec *domain.AuditRecord) (uuid.UUID, error)

func (f SinkFunc) RecordEvent(ctx context.Context, rec *domain.AuditRecord) (uuid.UUID, error) {
	return f(ctx, rec)
}
