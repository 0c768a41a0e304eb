package v1

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/secrets"
)

// Gateway runs whitelisted remote calls. *rpc.Gateway satisfies this
// interface.
type Gateway interface {
	Call(ctx context.Context, function string, params map[string]any, caller domain.Caller) (json.RawMessage, error)
}

// CredentialStore abstracts tenant credential management for handler
// testing. *secrets.CredentialService satisfies this interface.
type CredentialStore interface {
	Store(ctx context.Context, tenantID uuid.UUID, name string, plaintext []byte) (*secrets.Credential, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]*secrets.Credential, error)
	Delete(ctx context.Context, tenantID uuid.UUID, name string) error
}

// AuditLog abstracts audit trail queries. *postgres.AuditRepo satisfies this
// interface.
type AuditLog interface {
	ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*domain.AuditRecord, error)
	ListByResource(ctx context.Context, organizationID, resourceType, resourceID string) ([]*domain.AuditRecord, error)
}
