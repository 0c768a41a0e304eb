package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Credential is an encrypted secret owned by exactly one tenant.
type Credential struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string // human-readable name, e.g. "TWILIO_AUTH_TOKEN"
	Sealed    EncryptedCredential
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CredentialRepository stores encrypted credentials.
type CredentialRepository interface {
	Upsert(ctx context.Context, c *Credential) error
	GetByName(ctx context.Context, tenantID uuid.UUID, name string) (*Credential, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Credential, error)
	// ListStale returns up to limit credentials sealed below keyVersion,
	// ordered by (UpdatedAt, ID) and strictly after the cursor when one is given.
	ListStale(ctx context.Context, keyVersion int, after *StaleCursor, limit int) ([]*Credential, error)
	// Replace swaps the sealed value only if the stored key version still
	// equals expectedKeyVersion; otherwise it returns ErrConcurrentUpdate.
	Replace(ctx context.Context, id uuid.UUID, expectedKeyVersion int, sealed *EncryptedCredential) error
	Delete(ctx context.Context, tenantID uuid.UUID, name string) error
}

// StaleCursor is a position in the (UpdatedAt, ID) order of stale credentials.
type StaleCursor struct {
	UpdatedAt time.Time
	ID        uuid.UUID
}

// RotationBatch is the outcome of one RotateStale call.
type RotationBatch struct {
	Results []RotationResult
	// Next points past the last listed credential; nil when nothing was listed.
	Next *StaleCursor
}

// CredentialService ties the cipher and rotator to a repository.
type CredentialService struct {
	repo    CredentialRepository
	cipher  *Cipher
	rotator *Rotator
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(repo CredentialRepository, c *Cipher, r *Rotator) *CredentialService {
	return &CredentialService{repo: repo, cipher: c, rotator: r}
}

// Store encrypts plaintext for the tenant and saves it under name,
// replacing any previous value wholesale.
func (s *CredentialService) Store(ctx context.Context, tenantID uuid.UUID, name string, plaintext []byte) (*Credential, error) {
	sealed, err := s.cipher.Encrypt(plaintext, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("secrets.CredentialService.Store: %w", err)
	}

	now := time.Now()
	c := &Credential{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		Sealed:    *sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return nil, fmt.Errorf("secrets.CredentialService.Store: %w", err)
	}
	return c, nil
}

// Reveal decrypts the named credential.
func (s *CredentialService) Reveal(ctx context.Context, tenantID uuid.UUID, name string) ([]byte, error) {
	c, err := s.repo.GetByName(ctx, tenantID, name)
	if err != nil {
		return nil, fmt.Errorf("secrets.CredentialService.Reveal: %w", err)
	}
	plaintext, err := s.cipher.Decrypt(&c.Sealed, tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("secrets.CredentialService.Reveal: %q: %w", name, err)
	}
	return plaintext, nil
}

// List returns a tenant's credentials without decrypting them.
func (s *CredentialService) List(ctx context.Context, tenantID uuid.UUID) ([]*Credential, error) {
	list, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("secrets.CredentialService.List: %w", err)
	}
	return list, nil
}

// Delete removes the named credential.
func (s *CredentialService) Delete(ctx context.Context, tenantID uuid.UUID, name string) error {
	if err := s.repo.Delete(ctx, tenantID, name); err != nil {
		return fmt.Errorf("secrets.CredentialService.Delete: %w", err)
	}
	return nil
}

// RotateStale rotates up to batchSize credentials sealed under an older key
// version, starting after the cursor, and persists each success. Per-item
// outcomes are returned; only a failure to resolve the current version or
// list candidates is an error. Credentials that fail stay where they are, so
// callers page forward with Next instead of listing from the start again.
func (s *CredentialService) RotateStale(ctx context.Context, after *StaleCursor, batchSize int) (RotationBatch, error) {
	current, err := s.cipher.keys.Current()
	if err != nil {
		return RotationBatch{}, fmt.Errorf("secrets.CredentialService.RotateStale: %w", err)
	}

	stale, err := s.repo.ListStale(ctx, current, after, batchSize)
	if err != nil {
		return RotationBatch{}, fmt.Errorf("secrets.CredentialService.RotateStale: %w", err)
	}

	items := make([]RotationItem, len(stale))
	byID := make(map[string]*Credential, len(stale))
	for i, c := range stale {
		items[i] = RotationItem{ID: c.ID.String(), TenantID: c.TenantID.String(), Credential: &c.Sealed}
		byID[c.ID.String()] = c
	}

	batch := RotationBatch{Results: s.rotator.BatchRotate(ctx, items)}
	if n := len(stale); n > 0 {
		batch.Next = &StaleCursor{UpdatedAt: stale[n-1].UpdatedAt, ID: stale[n-1].ID}
	}

	for i := range batch.Results {
		res := &batch.Results[i]
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("credential_id", res.ID).Int("key_version", res.FromVersion).Msg("secrets: rotation failed")
			continue
		}
		if !res.Rotated {
			continue
		}

		c := byID[res.ID]
		if err := s.repo.Replace(ctx, c.ID, res.FromVersion, res.Credential); err != nil {
			res.Rotated = false
			res.ToVersion = res.FromVersion
			res.Credential = nil
			res.Err = fmt.Errorf("secrets.CredentialService.RotateStale: persist: %w", err)
			if !errors.Is(err, ErrConcurrentUpdate) {
				log.Error().Err(err).Str("credential_id", res.ID).Msg("secrets: persist rotated credential")
			}
		}
	}
	return batch, nil
}
