package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gosuda/relaygate/internal/secrets"
)

const credentialColumns = `id, tenant_id, name, sealed, created_at, updated_at`

// CredentialRepo implements secrets.CredentialRepository. Values are stored
// only in their sealed form.
type CredentialRepo struct {
	db DB
}

func NewCredentialRepo(db DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Upsert stores c, replacing the sealed value of an existing credential with
// the same tenant and name. c.ID and c.CreatedAt are set to the stored row's.
func (r *CredentialRepo) Upsert(ctx context.Context, c *secrets.Credential) error {
	sealed, err := c.Sealed.Marshal()
	if err != nil {
		return fmt.Errorf("credentialRepo.Upsert: %w", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO credentials (id, tenant_id, name, sealed, key_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, name) DO UPDATE
		 SET sealed = EXCLUDED.sealed, key_version = EXCLUDED.key_version, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		c.ID, c.TenantID, c.Name, sealed, c.Sealed.KeyVersion, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("credentialRepo.Upsert: %w", err)
	}

	return nil
}

func (r *CredentialRepo) GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*secrets.Credential, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("credentialRepo.GetByName: %w", secrets.ErrCredentialNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.GetByName: %w", err)
	}

	return c, nil
}

func (r *CredentialRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*secrets.Credential, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE tenant_id = $1 ORDER BY name`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.ListByTenant: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows, "credentialRepo.ListByTenant")
}

// ListStale returns credentials sealed below keyVersion in (updated_at, id)
// order, starting strictly after the cursor when one is given.
func (r *CredentialRepo) ListStale(ctx context.Context, keyVersion int, after *secrets.StaleCursor, limit int) ([]*secrets.Credential, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+credentialColumns+` FROM credentials WHERE key_version < $1
			 ORDER BY updated_at, id LIMIT $2`,
			keyVersion, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+credentialColumns+` FROM credentials WHERE key_version < $1
			 AND (updated_at, id) > ($2, $3)
			 ORDER BY updated_at, id LIMIT $4`,
			keyVersion, after.UpdatedAt, after.ID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("credentialRepo.ListStale: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows, "credentialRepo.ListStale")
}

func (r *CredentialRepo) Replace(ctx context.Context, id uuid.UUID, expectedKeyVersion int, sealed *secrets.EncryptedCredential) error {
	data, err := sealed.Marshal()
	if err != nil {
		return fmt.Errorf("credentialRepo.Replace: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE credentials SET sealed = $3, key_version = $4, updated_at = $5
		 WHERE id = $1 AND key_version = $2`,
		id, expectedKeyVersion, data, sealed.KeyVersion, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("credentialRepo.Replace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credentialRepo.Replace: %w", secrets.ErrConcurrentUpdate)
	}

	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM credentials WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	)
	if err != nil {
		return fmt.Errorf("credentialRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credentialRepo.Delete: %w", secrets.ErrCredentialNotFound)
	}

	return nil
}

func scanCredential(row pgx.Row) (*secrets.Credential, error) {
	var (
		c      secrets.Credential
		sealed []byte
	)
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &sealed, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	decoded, err := secrets.UnmarshalCredential(sealed)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	c.Sealed = *decoded
	return &c, nil
}

func scanCredentials(rows pgx.Rows, caller string) ([]*secrets.Credential, error) {
	var list []*secrets.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return list, nil
}
