package secrets

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

const defaultRotationWorkers = 4

// Rotator re-encrypts credentials that were sealed under an older key version.
type Rotator struct {
	cipher  *Cipher
	workers int
}

// NewRotator creates a Rotator. workers bounds BatchRotate concurrency;
// values below 1 use a small default.
func NewRotator(c *Cipher, workers int) *Rotator {
	if workers < 1 {
		workers = defaultRotationWorkers
	}
	return &Rotator{cipher: c, workers: workers}
}

// NeedsRotation reports whether cred predates the current key version. It
// returns false when no current version can be resolved.
func (r *Rotator) NeedsRotation(cred *EncryptedCredential) bool {
	current, err := r.cipher.keys.Current()
	if err != nil {
		return false
	}
	return cred.KeyVersion < current
}

// Rotate decrypts cred under its own key version and re-encrypts it under the
// current one. It returns nil, nil when cred is already current. Rotation
// never moves a credential to an older version.
func (r *Rotator) Rotate(cred *EncryptedCredential, tenantID string) (*EncryptedCredential, error) {
	current, err := r.cipher.keys.Current()
	if err != nil {
		return nil, fmt.Errorf("secrets.Rotate: %w", err)
	}
	if cred.KeyVersion >= current {
		return nil, nil
	}

	plaintext, err := r.cipher.Decrypt(cred, tenantID)
	if err != nil {
		return nil, fmt.Errorf("secrets.Rotate: %w", err)
	}
	defer clear(plaintext)

	rotated, err := r.cipher.encryptWithVersion(plaintext, tenantID, current)
	if err != nil {
		return nil, fmt.Errorf("secrets.Rotate: %w", err)
	}
	return rotated, nil
}

// RotationItem is one credential submitted to BatchRotate.
type RotationItem struct {
	ID         string
	TenantID   string
	Credential *EncryptedCredential
}

// RotationResult records what happened to one RotationItem.
type RotationResult struct {
	ID          string
	Rotated     bool
	FromVersion int
	ToVersion   int
	Credential  *EncryptedCredential
	Err         error
}

// BatchRotate rotates items independently and in parallel. A failure on one
// item is recorded in its result and never aborts the others. Results keep
// the order of items.
func (r *Rotator) BatchRotate(ctx context.Context, items []RotationItem) []RotationResult {
	results := make([]RotationResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, item := range items {
		g.Go(func() error {
			res := RotationResult{ID: item.ID}
			if item.Credential != nil {
				res.FromVersion = item.Credential.KeyVersion
				res.ToVersion = item.Credential.KeyVersion
			}

			switch {
			case gctx.Err() != nil:
				res.Err = gctx.Err()
			case item.Credential == nil:
				res.Err = fmt.Errorf("secrets.BatchRotate: %s: %w", item.ID, ErrDecryptionFailed)
			default:
				rotated, err := r.Rotate(item.Credential, item.TenantID)
				switch {
				case err != nil:
					res.Err = err
				case rotated != nil:
					res.Rotated = true
					res.Credential = rotated
					res.ToVersion = rotated.KeyVersion
				}
			}

			results[i] = res
			// Per-item failures are reported through results, not the group.
			return nil
		})
	}

	_ = g.Wait()
	return results
}
