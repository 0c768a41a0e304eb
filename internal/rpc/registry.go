package rpc

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/gosuda/relaygate/internal/validate"
)

// RiskLevel grades the impact of a callable function.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

//nolint:gochecknoglobals // sentinel error
var ErrDuplicateFunction = errors.New("rpc: duplicate function name")

//nolint:gochecknoglobals // sentinel error
var ErrInvalidDescriptor = errors.New("rpc: invalid function descriptor")

// Function names double as stored procedure identifiers.
//
//nolint:gochecknoglobals // compiled once
var functionName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Descriptor declares one callable function.
type Descriptor struct {
	Name         string
	Params       validate.Schema
	Risk         RiskLevel
	RequiresAuth bool
	// RateLimitPerMinute is the per-caller ceiling; 0 disables limiting.
	RateLimitPerMinute int
	// CredentialParams are encrypted under the caller's tenant before
	// execution. Each must also be declared in Params.
	CredentialParams []string
}

func (d Descriptor) clone() Descriptor {
	d.Params = maps.Clone(d.Params)
	d.CredentialParams = slices.Clone(d.CredentialParams)
	return d
}

func (d Descriptor) check() error {
	if !functionName.MatchString(d.Name) {
		return fmt.Errorf("%q: name must be a lower-case identifier: %w", d.Name, ErrInvalidDescriptor)
	}
	if !d.Risk.valid() {
		return fmt.Errorf("%q: unknown risk level %q: %w", d.Name, d.Risk, ErrInvalidDescriptor)
	}
	if d.RateLimitPerMinute < 0 {
		return fmt.Errorf("%q: negative rate limit: %w", d.Name, ErrInvalidDescriptor)
	}
	for _, p := range d.CredentialParams {
		if _, ok := d.Params[p]; !ok {
			return fmt.Errorf("%q: credential param %q is not declared: %w", d.Name, p, ErrInvalidDescriptor)
		}
	}
	return nil
}

// Registry is the closed set of callable functions. It is built once and
// has no mutation methods.
type Registry struct {
	byName map[string]Descriptor
}

// NewRegistry builds a Registry. Duplicate or invalid descriptors are an
// error; nothing is registered in that case.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	byName := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if err := d.check(); err != nil {
			return nil, fmt.Errorf("rpc.NewRegistry: %w", err)
		}
		if _, exists := byName[d.Name]; exists {
			return nil, fmt.Errorf("rpc.NewRegistry: %q: %w", d.Name, ErrDuplicateFunction)
		}
		byName[d.Name] = d.clone()
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the descriptor registered under name. Names are matched
// exactly.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return d.clone(), true
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.byName))
}

func (r *Registry) Len() int {
	return len(r.byName)
}
