package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotate_AlreadyCurrent(t *testing.T) {
	t.Parallel()

	c, _ := newTestCipher(t, 1)
	r := NewRotator(c, 0)

	sealed, err := c.Encrypt([]byte("token"), "tenant-a")
	require.NoError(t, err)

	assert.False(t, r.NeedsRotation(sealed))

	rotated, err := r.Rotate(sealed, "tenant-a")
	require.NoError(t, err)
	assert.Nil(t, rotated)
}

func TestRotate_ToCurrentVersion(t *testing.T) {
	t.Parallel()

	c, provider := newTestCipher(t, 1)
	r := NewRotator(c, 2)

	old, err := c.Encrypt([]byte("token"), "tenant-a")
	require.NoError(t, err)
	require.Equal(t, 1, old.KeyVersion)

	require.NoError(t, provider.Add(2, randomSecret(t)))
	assert.True(t, r.NeedsRotation(old))

	rotated, err := r.Rotate(old, "tenant-a")
	require.NoError(t, err)
	require.NotNil(t, rotated)
	assert.Equal(t, 2, rotated.KeyVersion)
	assert.NotEqual(t, old.Salt, rotated.Salt)

	plaintext, err := c.Decrypt(rotated, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "token", string(plaintext))

	// The old value stays readable while version 1 is configured.
	plaintext, err = c.Decrypt(old, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "token", string(plaintext))
}

func TestRotate_WrongTenant(t *testing.T) {
	t.Parallel()

	c, provider := newTestCipher(t, 1)
	r := NewRotator(c, 1)

	old, err := c.Encrypt([]byte("token"), "tenant-a")
	require.NoError(t, err)
	require.NoError(t, provider.Add(2, randomSecret(t)))

	rotated, err := r.Rotate(old, "tenant-b")
	require.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Nil(t, rotated)
}

func TestBatchRotate_IsolatesFailures(t *testing.T) {
	t.Parallel()

	c, provider := newTestCipher(t, 1)
	r := NewRotator(c, 2)

	good, err := c.Encrypt([]byte("good"), "tenant-a")
	require.NoError(t, err)
	other, err := c.Encrypt([]byte("other"), "tenant-b")
	require.NoError(t, err)

	require.NoError(t, provider.Add(3, randomSecret(t)))

	current, err := c.Encrypt([]byte("current"), "tenant-a")
	require.NoError(t, err)

	// Sealed under a version that is no longer configured.
	orphan := *good
	orphan.KeyVersion = 2

	items := []RotationItem{
		{ID: "good", TenantID: "tenant-a", Credential: good},
		{ID: "orphan", TenantID: "tenant-a", Credential: &orphan},
		{ID: "current", TenantID: "tenant-a", Credential: current},
		{ID: "tampered-tenant", TenantID: "tenant-a", Credential: other},
		{ID: "nil", TenantID: "tenant-a"},
	}

	results := r.BatchRotate(context.Background(), items)
	require.Len(t, results, len(items))

	for i, item := range items {
		assert.Equal(t, item.ID, results[i].ID)
	}

	assert.True(t, results[0].Rotated)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].FromVersion)
	assert.Equal(t, 3, results[0].ToVersion)
	plaintext, err := c.Decrypt(results[0].Credential, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "good", string(plaintext))

	assert.False(t, results[1].Rotated)
	assert.True(t, IsConfigMissing(results[1].Err))

	assert.False(t, results[2].Rotated)
	assert.NoError(t, results[2].Err)
	assert.Nil(t, results[2].Credential)

	assert.False(t, results[3].Rotated)
	assert.ErrorIs(t, results[3].Err, ErrDecryptionFailed)

	assert.ErrorIs(t, results[4].Err, ErrDecryptionFailed)
}

func TestBatchRotate_CanceledContext(t *testing.T) {
	t.Parallel()

	c, provider := newTestCipher(t, 1)
	r := NewRotator(c, 1)

	old, err := c.Encrypt([]byte("token"), "tenant-a")
	require.NoError(t, err)
	require.NoError(t, provider.Add(2, randomSecret(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.BatchRotate(ctx, []RotationItem{{ID: "a", TenantID: "tenant-a", Credential: old}})
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.False(t, results[0].Rotated)
}
