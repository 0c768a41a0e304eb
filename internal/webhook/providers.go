package webhook

import (
	"crypto/hmac"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	slacklib "github.com/slack-go/slack"
)

// DefaultTolerance bounds the age of timestamp-qualified signatures.
const DefaultTolerance = 5 * time.Minute

// Provider names.
const (
	ProviderSlack   = "slack"
	ProviderStripe  = "stripe"
	ProviderMeta    = "meta"
	ProviderGeneric = "generic"
)

// SlackVerifier checks the X-Slack-Signature scheme (v0, timestamp-qualified).
// Slack's own verifier enforces a five minute tolerance before the MAC.
type SlackVerifier struct{}

func (SlackVerifier) Provider() string { return ProviderSlack }

func (SlackVerifier) Verify(body []byte, header http.Header, secret []byte) error {
	sv, err := slacklib.NewSecretsVerifier(header, string(secret))
	if err != nil {
		switch {
		case errors.Is(err, slacklib.ErrMissingHeaders):
			return &VerifyError{Provider: ProviderSlack, Reason: ReasonMissingSignature}
		case errors.Is(err, slacklib.ErrExpiredTimestamp):
			return &VerifyError{Provider: ProviderSlack, Reason: ReasonStaleTimestamp}
		default:
			return &VerifyError{Provider: ProviderSlack, Reason: ReasonMalformedSignature}
		}
	}

	if _, err := sv.Write(body); err != nil {
		return &VerifyError{Provider: ProviderSlack, Reason: ReasonMismatch}
	}
	if err := sv.Ensure(); err != nil {
		return &VerifyError{Provider: ProviderSlack, Reason: ReasonMismatch}
	}
	return nil
}

// StripeVerifier checks the Stripe-Signature scheme:
// "t=<unix>,v1=<hex>[,v1=<hex>...]" over "<t>.<body>".
type StripeVerifier struct {
	Tolerance time.Duration
	Now       func() time.Time
}

func (StripeVerifier) Provider() string { return ProviderStripe }

func (v StripeVerifier) Verify(body []byte, header http.Header, secret []byte) error {
	raw := header.Get("Stripe-Signature")
	if raw == "" {
		return &VerifyError{Provider: ProviderStripe, Reason: ReasonMissingSignature}
	}

	var (
		ts         string
		signatures []string
	)
	for _, part := range strings.Split(raw, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return &VerifyError{Provider: ProviderStripe, Reason: ReasonMalformedSignature}
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return &VerifyError{Provider: ProviderStripe, Reason: ReasonMalformedSignature}
	}
	if !withinTolerance(time.Unix(unix, 0), v.now(), v.tolerance()) {
		return &VerifyError{Provider: ProviderStripe, Reason: ReasonStaleTimestamp}
	}

	expected := macSHA256(secret, []byte(ts), []byte("."), body)

	// Every candidate is compared; no early exit on the first match.
	matched := false
	for _, sig := range signatures {
		d, err := decodeDigest(ProviderStripe, sig)
		if err != nil {
			return err
		}
		if hmac.Equal(expected, d) {
			matched = true
		}
	}
	if !matched {
		return &VerifyError{Provider: ProviderStripe, Reason: ReasonMismatch}
	}
	return nil
}

func (v StripeVerifier) tolerance() time.Duration {
	if v.Tolerance > 0 {
		return v.Tolerance
	}
	return DefaultTolerance
}

func (v StripeVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// MetaVerifier checks X-Hub-Signature-256: "sha256=<hex>" over the body.
type MetaVerifier struct{}

func (MetaVerifier) Provider() string { return ProviderMeta }

func (MetaVerifier) Verify(body []byte, header http.Header, secret []byte) error {
	raw := header.Get("X-Hub-Signature-256")
	if raw == "" {
		return &VerifyError{Provider: ProviderMeta, Reason: ReasonMissingSignature}
	}
	sig, ok := strings.CutPrefix(raw, "sha256=")
	if !ok {
		return &VerifyError{Provider: ProviderMeta, Reason: ReasonMalformedSignature}
	}
	d, err := decodeDigest(ProviderMeta, sig)
	if err != nil {
		return err
	}
	if !hmac.Equal(macSHA256(secret, body), d) {
		return &VerifyError{Provider: ProviderMeta, Reason: ReasonMismatch}
	}
	return nil
}

// GenericVerifier checks a hex HMAC-SHA256 of the body carried in Header
// (X-Signature by default).
type GenericVerifier struct {
	Name   string
	Header string
}

func (v GenericVerifier) Provider() string {
	if v.Name != "" {
		return v.Name
	}
	return ProviderGeneric
}

func (v GenericVerifier) Verify(body []byte, header http.Header, secret []byte) error {
	name := v.Header
	if name == "" {
		name = "X-Signature"
	}
	sig := strings.TrimPrefix(header.Get(name), "sha256=")
	d, err := decodeDigest(v.Provider(), sig)
	if err != nil {
		return err
	}
	if !hmac.Equal(macSHA256(secret, body), d) {
		return &VerifyError{Provider: v.Provider(), Reason: ReasonMismatch}
	}
	return nil
}

func withinTolerance(signedAt, now time.Time, tolerance time.Duration) bool {
	d := now.Sub(signedAt)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// DefaultVerifiers returns the built-in providers keyed by name.
func DefaultVerifiers() map[string]Verifier {
	vs := []Verifier{SlackVerifier{}, StripeVerifier{}, MetaVerifier{}, GenericVerifier{}}
	out := make(map[string]Verifier, len(vs))
	for _, v := range vs {
		out[v.Provider()] = v
	}
	return out
}
