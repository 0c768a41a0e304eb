package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/secrets"
)

func TestAuditRepo_RecordEvent(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	repo := NewAuditRepo(db)

	rec := &domain.AuditRecord{
		EventType:      "rpc.call",
		Category:       domain.AuditCategoryRPC,
		ActorID:        "user-1",
		OrganizationID: "org-1",
		ResourceType:   "rpc_function",
		ResourceID:     "get_user",
		Result:         domain.AuditResultSuccess,
		Metadata:       map[string]any{"risk": "low"},
	}
	id, err := repo.RecordEvent(context.Background(), rec)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, rec.ID, id)
	assert.False(t, rec.Timestamp.IsZero())

	call := db.lastCall()
	assert.Contains(t, call.sql, "INSERT INTO audit_log")
	require.Len(t, call.args, 10)
	assert.Equal(t, "rpc", call.args[2])
	assert.Equal(t, "success", call.args[7])
	meta, ok := call.args[8].([]byte)
	require.True(t, ok)
	assert.JSONEq(t, `{"risk":"low"}`, string(meta))
}

func TestAuditRepo_RecordEventKeepsID(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	id := uuid.New()
	got, err := NewAuditRepo(db).RecordEvent(context.Background(), &domain.AuditRecord{ID: id, EventType: "webhook.received"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	meta, _ := db.lastCall().args[8].([]byte)
	assert.JSONEq(t, `{}`, string(meta))
}

func TestAuditRepo_RecordEventError(t *testing.T) {
	t.Parallel()

	db := &fakeDB{execErr: errors.New("connection reset")}
	_, err := NewAuditRepo(db).RecordEvent(context.Background(), &domain.AuditRecord{EventType: "rpc.call"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auditRepo.RecordEvent")
}

func TestAuditRepo_List(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()
	db := &fakeDB{rows: [][]any{
		{id, "rpc.call", "rpc", "user-1", "org-1", "rpc_function", "get_user", "failure", []byte(`{"error_kind":"AUTH_REQUIRED"}`), now},
	}}
	repo := NewAuditRepo(db)

	list, err := repo.ListByOrganization(context.Background(), "org-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, domain.AuditCategoryRPC, list[0].Category)
	assert.Equal(t, domain.AuditResultFailure, list[0].Result)
	assert.Equal(t, "AUTH_REQUIRED", list[0].Metadata["error_kind"])
	assert.Equal(t, []any{"org-1", 50, 0}, db.lastCall().args)

	list, err = repo.ListByResource(context.Background(), "org-1", "rpc_function", "get_user")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []any{"org-1", "rpc_function", "get_user"}, db.lastCall().args)
}

func sealedFixture(t *testing.T, version int) (secrets.EncryptedCredential, []byte) {
	t.Helper()

	sealed := secrets.EncryptedCredential{
		Ciphertext:       []byte{1, 2, 3},
		IV:               make([]byte, 16),
		AuthTag:          make([]byte, 16),
		Salt:             make([]byte, 32),
		AlgorithmVersion: 1,
		KeyVersion:       version,
	}
	raw, err := sealed.Marshal()
	require.NoError(t, err)
	return sealed, raw
}

func TestCredentialRepo_Upsert(t *testing.T) {
	t.Parallel()

	existingID := uuid.New()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeDB{row: []any{existingID, created}}
	sealed, raw := sealedFixture(t, 3)

	c := &secrets.Credential{ID: uuid.New(), TenantID: uuid.New(), Name: "TWILIO_AUTH_TOKEN", Sealed: sealed}
	require.NoError(t, NewCredentialRepo(db).Upsert(context.Background(), c))

	assert.Equal(t, existingID, c.ID)
	assert.Equal(t, created, c.CreatedAt)

	call := db.lastCall()
	assert.Contains(t, call.sql, "ON CONFLICT (tenant_id, name)")
	assert.JSONEq(t, string(raw), string(call.args[3].([]byte)))
	assert.Equal(t, 3, call.args[4])
}

func TestCredentialRepo_GetByName(t *testing.T) {
	t.Parallel()

	id, tenant := uuid.New(), uuid.New()
	now := time.Now().UTC()
	sealed, raw := sealedFixture(t, 2)

	db := &fakeDB{row: []any{id, tenant, "API_KEY", raw, now, now}}
	c, err := NewCredentialRepo(db).GetByName(context.Background(), tenant, "API_KEY")
	require.NoError(t, err)
	assert.Equal(t, id, c.ID)
	assert.Equal(t, sealed, c.Sealed)

	db = &fakeDB{rowErr: pgx.ErrNoRows}
	_, err = NewCredentialRepo(db).GetByName(context.Background(), tenant, "MISSING")
	require.ErrorIs(t, err, secrets.ErrCredentialNotFound)
}

func TestCredentialRepo_ListStale(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	_, raw1 := sealedFixture(t, 1)
	_, raw2 := sealedFixture(t, 2)
	db := &fakeDB{rows: [][]any{
		{uuid.New(), uuid.New(), "A", raw1, now, now},
		{uuid.New(), uuid.New(), "B", raw2, now, now},
	}}

	list, err := NewCredentialRepo(db).ListStale(context.Background(), 3, nil, 100)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Sealed.KeyVersion)
	assert.Equal(t, 2, list[1].Sealed.KeyVersion)
	assert.Equal(t, []any{3, 100}, db.lastCall().args)
	assert.Contains(t, db.lastCall().sql, "ORDER BY updated_at, id")

	// A cursor pages past earlier rows, including ones that failed to rotate.
	cursor := &secrets.StaleCursor{UpdatedAt: now, ID: uuid.New()}
	_, err = NewCredentialRepo(db).ListStale(context.Background(), 3, cursor, 100)
	require.NoError(t, err)
	assert.Contains(t, db.lastCall().sql, "(updated_at, id) > ($2, $3)")
	assert.Equal(t, []any{3, cursor.UpdatedAt, cursor.ID, 100}, db.lastCall().args)

	db = &fakeDB{queryErr: errors.New("timeout")}
	_, err = NewCredentialRepo(db).ListStale(context.Background(), 3, nil, 100)
	require.Error(t, err)
}

func TestCredentialRepo_Replace(t *testing.T) {
	t.Parallel()

	sealed, _ := sealedFixture(t, 4)

	db := &fakeDB{execTag: "UPDATE 1"}
	require.NoError(t, NewCredentialRepo(db).Replace(context.Background(), uuid.New(), 3, &sealed))
	call := db.lastCall()
	assert.Contains(t, call.sql, "WHERE id = $1 AND key_version = $2")
	assert.Equal(t, 3, call.args[1])
	assert.Equal(t, 4, call.args[3])

	db = &fakeDB{execTag: "UPDATE 0"}
	err := NewCredentialRepo(db).Replace(context.Background(), uuid.New(), 3, &sealed)
	require.ErrorIs(t, err, secrets.ErrConcurrentUpdate)
}

func TestCredentialRepo_Delete(t *testing.T) {
	t.Parallel()

	db := &fakeDB{execTag: "DELETE 1"}
	require.NoError(t, NewCredentialRepo(db).Delete(context.Background(), uuid.New(), "A"))

	db = &fakeDB{execTag: "DELETE 0"}
	err := NewCredentialRepo(db).Delete(context.Background(), uuid.New(), "A")
	require.ErrorIs(t, err, secrets.ErrCredentialNotFound)
}

func TestExecutor_Execute(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: []any{[]byte(`{"id":"u1"}`)}}
	out, err := NewExecutor(db).Execute(context.Background(), "get_user", map[string]any{"id": "u1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1"}`, string(out))

	call := db.lastCall()
	assert.Equal(t, `SELECT to_jsonb("get_user"($1::jsonb))`, call.sql)
	require.Len(t, call.args, 1)
	assert.JSONEq(t, `{"id":"u1"}`, string(call.args[0].([]byte)))
}

func TestExecutor_QuotesFunctionName(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: []any{[]byte(`null`)}}
	_, err := NewExecutor(db).Execute(context.Background(), `x"); DROP TABLE users; --`, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT to_jsonb("x""); DROP TABLE users; --"($1::jsonb))`, db.lastCall().sql)
}

func TestExecutor_Error(t *testing.T) {
	t.Parallel()

	db := &fakeDB{rowErr: errors.New("function does not exist")}
	_, err := NewExecutor(db).Execute(context.Background(), "missing_fn", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_fn")
}
