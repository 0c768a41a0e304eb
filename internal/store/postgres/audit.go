package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gosuda/relaygate/internal/domain"
)

// AuditRepo is an append-only domain.AuditRepository.
type AuditRepo struct {
	db DB
}

func NewAuditRepo(db DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) RecordEvent(ctx context.Context, rec *domain.AuditRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auditRepo.RecordEvent: marshal metadata: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO audit_log (id, event_type, category, actor_id, organization_id, resource_type, resource_id, result, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.EventType, string(rec.Category), rec.ActorID, rec.OrganizationID,
		rec.ResourceType, rec.ResourceID, string(rec.Result), meta, rec.Timestamp,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auditRepo.RecordEvent: %w", err)
	}

	return rec.ID, nil
}

func (r *AuditRepo) ListByOrganization(ctx context.Context, organizationID string, limit, offset int) ([]*domain.AuditRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, category, actor_id, organization_id, resource_type, resource_id, result, metadata, created_at
		 FROM audit_log WHERE organization_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		organizationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListByOrganization: %w", err)
	}
	defer rows.Close()

	return scanAuditRecords(rows, "auditRepo.ListByOrganization")
}

func (r *AuditRepo) ListByResource(ctx context.Context, organizationID, resourceType, resourceID string) ([]*domain.AuditRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, category, actor_id, organization_id, resource_type, resource_id, result, metadata, created_at
		 FROM audit_log WHERE organization_id = $1 AND resource_type = $2 AND resource_id = $3
		 ORDER BY created_at DESC`,
		organizationID, resourceType, resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("auditRepo.ListByResource: %w", err)
	}
	defer rows.Close()

	return scanAuditRecords(rows, "auditRepo.ListByResource")
}

func scanAuditRecords(rows pgx.Rows, caller string) ([]*domain.AuditRecord, error) {
	var records []*domain.AuditRecord
	for rows.Next() {
		var (
			rec              domain.AuditRecord
			category, result string
			meta             []byte
		)

		if err := rows.Scan(
			&rec.ID, &rec.EventType, &category, &rec.ActorID, &rec.OrganizationID,
			&rec.ResourceType, &rec.ResourceID, &result, &meta, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		rec.Category = domain.AuditCategory(category)
		rec.Result = domain.AuditResult(result)
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%s: unmarshal metadata: %w", caller, err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return records, nil
}
