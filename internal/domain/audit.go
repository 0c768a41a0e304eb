package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AuditCategory string

const (
	AuditCategoryRPC        AuditCategory = "rpc"
	AuditCategoryWebhook    AuditCategory = "webhook"
	AuditCategoryCredential AuditCategory = "credential"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditRecord is the unit written to the external audit sink.
type AuditRecord struct {
	ID             uuid.UUID      `json:"id"`
	EventType      string         `json:"event_type"` // "rpc.call", "webhook.received", "credential.rotated", etc.
	Category       AuditCategory  `json:"category"`
	ActorID        string         `json:"actor_id,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Result         AuditResult    `json:"result"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// AuditSink ingests audit records. It returns the id under which the record
// was stored.
type AuditSink interface {
	RecordEvent(ctx context.Context, rec *AuditRecord) (uuid.UUID, error)
}

type AuditRepository interface {
	AuditSink
	ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*AuditRecord, error)
	ListByResource(ctx context.Context, organizationID, resourceType, resourceID string) ([]*AuditRecord, error)
}
