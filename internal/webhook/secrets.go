package webhook

import (
	"os"
	"strings"

	"github.com/gosuda/relaygate/internal/secrets"
)

// SecretSource resolves the signing secret of a provider. An absent secret
// is reported as a *secrets.ConfigMissingError.
type SecretSource interface {
	WebhookSecret(provider string) ([]byte, error)
}

// EnvSecrets reads secrets from Prefix + upper-cased provider name, e.g.
// RELAYGATE_WEBHOOK_SECRET_STRIPE.
type EnvSecrets struct {
	Prefix string
	Lookup func(string) (string, bool)
}

// NewEnvSecrets returns an EnvSecrets over the process environment.
func NewEnvSecrets(prefix string) *EnvSecrets {
	return &EnvSecrets{Prefix: prefix, Lookup: os.LookupEnv}
}

func (e *EnvSecrets) WebhookSecret(provider string) ([]byte, error) {
	name := e.Prefix + strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
	v, ok := e.Lookup(name)
	if !ok || v == "" {
		return nil, &secrets.ConfigMissingError{Name: name}
	}
	return []byte(v), nil
}

// StaticSecrets is a fixed provider to secret map.
type StaticSecrets map[string]string

func (s StaticSecrets) WebhookSecret(provider string) ([]byte, error) {
	v, ok := s[provider]
	if !ok || v == "" {
		return nil, &secrets.ConfigMissingError{Name: "webhook secret " + provider}
	}
	return []byte(v), nil
}
