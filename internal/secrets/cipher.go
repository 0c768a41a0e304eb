// Package secrets encrypts tenant credentials under versioned master keys
// and rotates them as new key versions are introduced.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AlgorithmAES256GCM is PBKDF2-HMAC-SHA512 key derivation with AES-256-GCM.
	AlgorithmAES256GCM = 1

	// MinIterations is the lowest accepted PBKDF2 iteration count.
	MinIterations = 100_000

	keySize  = 32
	ivSize   = 16
	tagSize  = 16
	saltSize = 32
)

// EncryptedCredential is the persisted form of an encrypted secret. It is
// immutable: rotation produces a new value.
type EncryptedCredential struct {
	Ciphertext       []byte `json:"ciphertext"`
	IV               []byte `json:"iv"`
	AuthTag          []byte `json:"authTag"`
	Salt             []byte `json:"salt"`
	AlgorithmVersion int    `json:"algorithmVersion"`
	KeyVersion       int    `json:"keyVersion"`
}

// Marshal encodes the credential for storage as an opaque document.
func (c *EncryptedCredential) Marshal() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("secrets.EncryptedCredential.Marshal: %w", err)
	}
	return b, nil
}

// UnmarshalCredential decodes a credential produced by Marshal.
func UnmarshalCredential(data []byte) (*EncryptedCredential, error) {
	var c EncryptedCredential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("secrets.UnmarshalCredential: %w", err)
	}
	return &c, nil
}

// Cipher encrypts credentials with per-tenant keys derived from the
// registry's master secrets.
type Cipher struct {
	keys       *KeyRegistry
	iterations int
	random     io.Reader
}

// CipherOption configures a Cipher.
type CipherOption func(*Cipher)

// WithIterations overrides the PBKDF2 iteration count.
func WithIterations(n int) CipherOption {
	return func(c *Cipher) { c.iterations = n }
}

// WithRandom overrides the source of IVs and salts.
func WithRandom(r io.Reader) CipherOption {
	return func(c *Cipher) { c.random = r }
}

// NewCipher creates a Cipher over keys.
func NewCipher(keys *KeyRegistry, opts ...CipherOption) (*Cipher, error) {
	c := &Cipher{keys: keys, iterations: MinIterations, random: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	if c.iterations < MinIterations {
		return nil, fmt.Errorf("secrets.NewCipher: %d: %w", c.iterations, ErrWeakIterations)
	}
	return c, nil
}

// Keys returns the registry backing the cipher.
func (c *Cipher) Keys() *KeyRegistry {
	return c.keys
}

// Encrypt encrypts plaintext for tenantID under the current key version.
func (c *Cipher) Encrypt(plaintext []byte, tenantID string) (*EncryptedCredential, error) {
	version, err := c.keys.Current()
	if err != nil {
		return nil, fmt.Errorf("secrets.Encrypt: %w", err)
	}
	return c.encryptWithVersion(plaintext, tenantID, version)
}

func (c *Cipher) encryptWithVersion(plaintext []byte, tenantID string, version int) (*EncryptedCredential, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("secrets.Encrypt: %w", ErrTenantRequired)
	}

	master, err := c.keys.Secret(version)
	if err != nil {
		return nil, fmt.Errorf("secrets.Encrypt: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(c.random, salt); err != nil {
		return nil, fmt.Errorf("secrets.Encrypt: generate salt: %w", err)
	}

	// A fresh IV per call; never derived from content.
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.random, iv); err != nil {
		return nil, fmt.Errorf("secrets.Encrypt: generate iv: %w", err)
	}

	aead, err := c.aead(master, tenantID, salt)
	if err != nil {
		return nil, fmt.Errorf("secrets.Encrypt: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, additionalData(tenantID, AlgorithmAES256GCM, version))
	split := len(sealed) - tagSize

	return &EncryptedCredential{
		Ciphertext:       sealed[:split],
		AuthTag:          sealed[split:],
		IV:               iv,
		Salt:             salt,
		AlgorithmVersion: AlgorithmAES256GCM,
		KeyVersion:       version,
	}, nil
}

// Decrypt authenticates and decrypts cred for tenantID. Any tampering, wrong
// tenant or wrong key yields ErrDecryptionFailed and no plaintext.
func (c *Cipher) Decrypt(cred *EncryptedCredential, tenantID string) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("secrets.Decrypt: %w", ErrDecryptionFailed)
	}
	if cred.AlgorithmVersion != AlgorithmAES256GCM {
		return nil, fmt.Errorf("secrets.Decrypt: %d: %w", cred.AlgorithmVersion, ErrUnknownAlgorithm)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("secrets.Decrypt: %w", ErrTenantRequired)
	}
	if len(cred.IV) != ivSize || len(cred.AuthTag) != tagSize || len(cred.Salt) != saltSize {
		return nil, fmt.Errorf("secrets.Decrypt: %w", ErrDecryptionFailed)
	}

	master, err := c.keys.Secret(cred.KeyVersion)
	if err != nil {
		return nil, fmt.Errorf("secrets.Decrypt: %w", err)
	}

	aead, err := c.aead(master, tenantID, cred.Salt)
	if err != nil {
		return nil, fmt.Errorf("secrets.Decrypt: %w", err)
	}

	sealed := make([]byte, 0, len(cred.Ciphertext)+tagSize)
	sealed = append(sealed, cred.Ciphertext...)
	sealed = append(sealed, cred.AuthTag...)

	plaintext, err := aead.Open(nil, cred.IV, sealed, additionalData(tenantID, cred.AlgorithmVersion, cred.KeyVersion))
	if err != nil {
		return nil, fmt.Errorf("secrets.Decrypt: %w", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func (c *Cipher) aead(master []byte, tenantID string, salt []byte) (cipher.AEAD, error) {
	key := DeriveKey(master, tenantID, salt, c.iterations)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// DeriveKey derives a tenant key. The tenant id is folded into the password
// material, so two tenants never share a key even with the same salt.
func DeriveKey(master []byte, tenantID string, salt []byte, iterations int) []byte {
	password := make([]byte, 0, len(master)+1+len(tenantID))
	password = append(password, master...)
	password = append(password, ':')
	password = append(password, tenantID...)
	return pbkdf2.Key(password, salt, iterations, keySize, sha512.New)
}

func additionalData(tenantID string, algorithm, keyVersion int) []byte {
	return []byte("relaygate/" + strconv.Itoa(algorithm) + "/" + strconv.Itoa(keyVersion) + "/" + tenantID)
}
