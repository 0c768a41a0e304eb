package secrets

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const masterKeyName = "master key"

// SecretProvider resolves versioned master secrets from wherever they live
// (environment, secret store). A missing version reports ok=false.
type SecretProvider interface {
	Secret(version int) (secret []byte, ok bool)
	Versions() []int
}

// EnvProvider reads master secrets from environment variables named
// Prefix + version, e.g. RELAYGATE_MASTER_KEY_V2.
type EnvProvider struct {
	Prefix string
	// Environ and Lookup default to os.Environ and os.LookupEnv.
	Environ func() []string
	Lookup  func(string) (string, bool)
}

// NewEnvProvider returns an EnvProvider for the given variable prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix, Environ: os.Environ, Lookup: os.LookupEnv}
}

func (p *EnvProvider) Secret(version int) ([]byte, bool) {
	v, ok := p.Lookup(p.Prefix + strconv.Itoa(version))
	if !ok || v == "" {
		return nil, false
	}
	return []byte(v), true
}

func (p *EnvProvider) Versions() []int {
	var out []int
	for _, kv := range p.Environ() {
		name, _, found := strings.Cut(kv, "=")
		if !found || !strings.HasPrefix(name, p.Prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, p.Prefix))
		if err != nil || n < 1 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// StaticProvider holds master secrets in memory. Versions can be appended
// but never replaced or removed.
type StaticProvider struct {
	mu      sync.RWMutex
	secrets map[int][]byte
}

// NewStaticProvider returns a provider seeded with the given versions.
func NewStaticProvider(seed map[int][]byte) *StaticProvider {
	p := &StaticProvider{secrets: make(map[int][]byte, len(seed))}
	for v, s := range seed {
		p.secrets[v] = append([]byte(nil), s...)
	}
	return p
}

// Add registers a new version. It is an administrative operation.
func (p *StaticProvider) Add(version int, secret []byte) error {
	if version < 1 {
		return ErrInvalidVersion
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.secrets[version]; exists {
		return ErrVersionExists
	}
	p.secrets[version] = append([]byte(nil), secret...)
	return nil
}

func (p *StaticProvider) Secret(version int) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.secrets[version]
	if !ok || len(s) == 0 {
		return nil, false
	}
	return s, true
}

func (p *StaticProvider) Versions() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int, 0, len(p.secrets))
	for v := range p.secrets {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// KeyRegistry is the single place that decides the current key version: the
// highest version whose secret is present. The observed current version
// never decreases, even if a provider later stops reporting it.
type KeyRegistry struct {
	provider SecretProvider
	highest  atomic.Int64
}

// NewKeyRegistry wraps provider.
func NewKeyRegistry(provider SecretProvider) *KeyRegistry {
	return &KeyRegistry{provider: provider}
}

// Current returns the current key version.
func (r *KeyRegistry) Current() (int, error) {
	found := 0
	for _, v := range r.provider.Versions() {
		if v <= found {
			continue
		}
		if _, ok := r.provider.Secret(v); ok {
			found = v
		}
	}

	for {
		prev := r.highest.Load()
		if int64(found) <= prev || r.highest.CompareAndSwap(prev, int64(found)) {
			break
		}
	}

	cur := int(r.highest.Load())
	if cur == 0 {
		return 0, &ConfigMissingError{Name: masterKeyName}
	}
	return cur, nil
}

// Secret returns the master secret for version.
func (r *KeyRegistry) Secret(version int) ([]byte, error) {
	if version < 1 {
		return nil, ErrInvalidVersion
	}
	s, ok := r.provider.Secret(version)
	if !ok {
		return nil, &ConfigMissingError{Name: masterKeyName, Version: version}
	}
	return s, nil
}
