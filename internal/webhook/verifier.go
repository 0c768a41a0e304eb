// Package webhook authenticates inbound webhooks and hands each distinct
// payload to its processor once.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
)

// Reason classifies a verification failure for logs and audit. It is never
// sent back to the webhook caller.
type Reason string

const (
	ReasonMissingSignature   Reason = "missing_signature"
	ReasonMalformedSignature Reason = "malformed_signature"
	ReasonStaleTimestamp     Reason = "stale_timestamp"
	ReasonMismatch           Reason = "mismatch"
)

// VerifyError is returned by every Verifier on failure.
type VerifyError struct {
	Provider string
	Reason   Reason
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("webhook: %s signature invalid: %s", e.Provider, e.Reason)
}

// ReasonOf extracts the failure reason from err, or "" if err is not a
// VerifyError.
func ReasonOf(err error) Reason {
	var ve *VerifyError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// Verifier checks one provider's signature scheme. body must be the exact
// raw request bytes.
type Verifier interface {
	Provider() string
	Verify(body []byte, header http.Header, secret []byte) error
}

// Result is the outcome of Check.
type Result struct {
	Valid  bool
	Reason Reason
}

// Check runs v and folds the error into a Result.
func Check(v Verifier, body []byte, header http.Header, secret []byte) Result {
	if err := v.Verify(body, header, secret); err != nil {
		reason := ReasonOf(err)
		if reason == "" {
			reason = ReasonMismatch
		}
		return Result{Reason: reason}
	}
	return Result{Valid: true}
}

// macSHA256 returns HMAC-SHA256(secret, parts...).
func macSHA256(secret []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, secret)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}

// decodeDigest decodes a hex digest. Only the encoding is checked here; a
// digest of the wrong length is left for hmac.Equal to reject like any other
// mismatch.
func decodeDigest(provider, sig string) ([]byte, error) {
	if sig == "" {
		return nil, &VerifyError{Provider: provider, Reason: ReasonMissingSignature}
	}
	d, err := hex.DecodeString(sig)
	if err != nil {
		return nil, &VerifyError{Provider: provider, Reason: ReasonMalformedSignature}
	}
	return d, nil
}
