package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gosuda/relaygate/internal/domain"
)

// LogSink writes audit records as structured log lines. It is the sink used
// when no database is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordEvent(_ context.Context, rec *domain.AuditRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	s.logger.Info().
		Str("audit_id", rec.ID.String()).
		Str("event_type", rec.EventType).
		Str("category", string(rec.Category)).
		Str("actor_id", rec.ActorID).
		Str("organization_id", rec.OrganizationID).
		Str("resource_type", rec.ResourceType).
		Str("resource_id", rec.ResourceID).
		Str("result", string(rec.Result)).
		Interface("metadata", rec.Metadata).
		Time("timestamp", rec.Timestamp).
		Msg("audit")
	return rec.ID, nil
}
