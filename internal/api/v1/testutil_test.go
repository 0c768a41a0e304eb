package v1_test

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/server/middleware"
)

func fixedTenantID() uuid.UUID {
	return uuid.MustParse("5d1b7a2e-93c4-4f0e-8a61-2b7c9e0f4d3a")
}

// ---------------------------------------------------------------------------
// Context helpers: inject the caller the way Identify does
// ---------------------------------------------------------------------------

func anonCtx() context.Context {
	return middleware.WithCaller(context.Background(), domain.Caller{Source: "192.0.2.10"})
}

func callerCtx(role string) context.Context {
	return middleware.WithCaller(context.Background(), domain.Caller{
		ActorID:  "actor-1",
		TenantID: fixedTenantID(),
		Role:     role,
		Source:   "192.0.2.10",
	})
}

// ---------------------------------------------------------------------------
// Mock Gateway
// ---------------------------------------------------------------------------

type mockGateway struct {
	callFunc func(ctx context.Context, function string, params map[string]any, caller domain.Caller) (json.RawMessage, error)
}

func (m *mockGateway) Call(ctx context.Context, function string, params map[string]any, caller domain.Caller) (json.RawMessage, error) {
	return m.callFunc(ctx, function, params, caller)
}

// ---------------------------------------------------------------------------
// Mock CredentialStore
// ---------------------------------------------------------------------------

type mockCredentialStore struct {
	storeFunc  func(ctx context.Context, tenantID uuid.UUID, name string, plaintext []byte) (*secrets.Credential, error)
	listFunc   func(ctx context.Context, tenantID uuid.UUID) ([]*secrets.Credential, error)
	deleteFunc func(ctx context.Context, tenantID uuid.UUID, name string) error
}

func (m *mockCredentialStore) Store(ctx context.Context, tenantID uuid.UUID, name string, plaintext []byte) (*secrets.Credential, error) {
	return m.storeFunc(ctx, tenantID, name, plaintext)
}

func (m *mockCredentialStore) List(ctx context.Context, tenantID uuid.UUID) ([]*secrets.Credential, error) {
	return m.listFunc(ctx, tenantID)
}

func (m *mockCredentialStore) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	return m.deleteFunc(ctx, tenantID, name)
}

// ---------------------------------------------------------------------------
// Mock AuditLog
// ---------------------------------------------------------------------------

type mockAuditLog struct {
	listByOrganizationFunc func(ctx context.Context, organizationID string, limit, offset int) ([]*domain.AuditRecord, error)
	listByResourceFunc     func(ctx context.Context, organizationID, resourceType, resourceID string) ([]*domain.AuditRecord, error)
}

func (m *mockAuditLog) ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*domain.AuditRecord, error) {
	return m.listByOrganizationFunc(ctx, organizationID, limit, offset)
}

func (m *mockAuditLog) ListByResource(ctx context.Context, organizationID, resourceType, resourceID string) ([]*domain.AuditRecord, error) {
	return m.listByResourceFunc(ctx, organizationID, resourceType, resourceID)
}
