package rpc

import (
	"errors"
	"fmt"

	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/validate"
)

// Kind classifies a gateway failure. Kinds and messages are safe to return
// to untrusted callers.
type Kind string

const (
	KindNotWhitelisted       Kind = "NOT_WHITELISTED"
	KindAuthRequired         Kind = "AUTH_REQUIRED"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindValidationFailed     Kind = "VALIDATION_FAILED"
	KindDecryptionFailed     Kind = "DECRYPTION_FAILED"
	KindConfigurationMissing Kind = "CONFIGURATION_MISSING"
	KindExecutorError        Kind = "EXECUTOR_ERROR"
)

// Error is the structured failure of a gateway call. Fields is set only for
// validation failures. The wrapped cause is for logs and is never exposed.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]validate.FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("rpc: %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("rpc: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// KindOf returns the kind of a gateway error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify maps errors from the credential cipher and the executor onto
// gateway kinds.
func classify(err error) *Error {
	var e *Error
	switch {
	case errors.As(err, &e):
		return e
	case secrets.IsConfigMissing(err):
		// Which secret is missing goes to the log through the cause.
		return newError(KindConfigurationMissing, "a required secret is not configured", err)
	case errors.Is(err, secrets.ErrDecryptionFailed), errors.Is(err, secrets.ErrUnknownAlgorithm):
		return newError(KindDecryptionFailed, "credential could not be decrypted", err)
	case errors.Is(err, secrets.ErrTenantRequired):
		return newError(KindAuthRequired, "a tenant identity is required", err)
	default:
		return newError(KindExecutorError, "the operation failed", err)
	}
}
