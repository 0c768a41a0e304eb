package secrets

import (
	"errors"
	"fmt"
)

//nolint:gochecknoglobals // sentinel error
var ErrDecryptionFailed = errors.New("secrets: decryption failed")

//nolint:gochecknoglobals // sentinel error
var ErrUnknownAlgorithm = errors.New("secrets: unknown algorithm version")

//nolint:gochecknoglobals // sentinel error
var ErrTenantRequired = errors.New("secrets: tenant id required")

//nolint:gochecknoglobals // sentinel error
var ErrVersionExists = errors.New("secrets: key version already registered")

//nolint:gochecknoglobals // sentinel error
var ErrInvalidVersion = errors.New("secrets: key versions start at 1")

//nolint:gochecknoglobals // sentinel error
var ErrWeakIterations = errors.New("secrets: pbkdf2 iterations below minimum")

//nolint:gochecknoglobals // sentinel error
var ErrCredentialNotFound = errors.New("secrets: credential not found")

//nolint:gochecknoglobals // sentinel error
var ErrConcurrentUpdate = errors.New("secrets: credential changed concurrently")

// ConfigMissingError reports a secret that is required but not configured.
// It names the secret and version but never carries the value.
type ConfigMissingError struct {
	Name    string
	Version int
}

func (e *ConfigMissingError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("secrets: %s version %d is not configured", e.Name, e.Version)
	}
	return fmt.Sprintf("secrets: %s is not configured", e.Name)
}

// IsConfigMissing reports whether err wraps a ConfigMissingError.
func IsConfigMissing(err error) bool {
	var cm *ConfigMissingError
	return errors.As(err, &cm)
}
