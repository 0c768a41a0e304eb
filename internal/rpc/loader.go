package rpc

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gosuda/relaygate/internal/validate"
)

// fileSpec is the on-disk layout of a registry file:
//
//	functions:
//	  - name: get_user
//	    risk: low
//	    requires_auth: true
//	    rate_limit_per_minute: 60
//	    params:
//	      id: {kind: uuid}
//	    credential_params: []
//	injection_patterns:            # optional, replaces the default set
//	  - name: sql_union_select
//	    expr: '(?i)\bunion\b\s+(all\s+)?select\b'
type fileSpec struct {
	Functions         []functionSpec           `yaml:"functions"`
	InjectionPatterns []validate.PatternSource `yaml:"injection_patterns"`
}

type functionSpec struct {
	Name               string               `yaml:"name"`
	Risk               RiskLevel            `yaml:"risk"`
	RequiresAuth       bool                 `yaml:"requires_auth"`
	RateLimitPerMinute int                  `yaml:"rate_limit_per_minute"`
	Params             map[string]paramSpec `yaml:"params"`
	CredentialParams   []string             `yaml:"credential_params"`
}

type paramSpec struct {
	Kind      validate.Kind `yaml:"kind"`
	AllowNull bool          `yaml:"allow_null"`
	MinLength int           `yaml:"min_length"`
	MaxLength int           `yaml:"max_length"`
	Min       *int64        `yaml:"min"`
	Max       *int64        `yaml:"max"`
	Allowed   []string      `yaml:"allowed"`
	Pattern   string        `yaml:"pattern"`
	Schema    string        `yaml:"schema"`
	Schemes   []string      `yaml:"schemes"`
}

// Definition is a parsed registry file.
type Definition struct {
	Registry *Registry
	// Detector is nil when the file does not override the injection patterns.
	Detector *validate.Detector
}

// LoadFile reads and parses a registry file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rpc.LoadFile: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rpc.LoadFile: %s: %w", path, err)
	}
	return def, nil
}

// Parse builds a Definition from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec fileSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("rpc.Parse: decode: %w", err)
	}

	descs := make([]Descriptor, 0, len(spec.Functions))
	for _, fs := range spec.Functions {
		d, err := fs.descriptor()
		if err != nil {
			return nil, fmt.Errorf("rpc.Parse: %w", err)
		}
		descs = append(descs, d)
	}

	reg, err := NewRegistry(descs...)
	if err != nil {
		return nil, fmt.Errorf("rpc.Parse: %w", err)
	}

	def := &Definition{Registry: reg}
	if len(spec.InjectionPatterns) > 0 {
		patterns, err := validate.CompilePatterns(spec.InjectionPatterns)
		if err != nil {
			return nil, fmt.Errorf("rpc.Parse: %w", err)
		}
		def.Detector = validate.NewDetector(patterns...)
	}
	return def, nil
}

func (fs functionSpec) descriptor() (Descriptor, error) {
	schema := make(validate.Schema, len(fs.Params))
	for field, ps := range fs.Params {
		rule, err := ps.rule()
		if err != nil {
			return Descriptor{}, fmt.Errorf("%s.%s: %w", fs.Name, field, err)
		}
		schema[field] = rule
	}
	return Descriptor{
		Name:               fs.Name,
		Params:             schema,
		Risk:               fs.Risk,
		RequiresAuth:       fs.RequiresAuth,
		RateLimitPerMinute: fs.RateLimitPerMinute,
		CredentialParams:   fs.CredentialParams,
	}, nil
}

func (ps paramSpec) rule() (validate.Rule, error) {
	switch ps.Kind {
	case validate.KindUUID, validate.KindEmail, validate.KindPhone, validate.KindText,
		validate.KindInteger, validate.KindJSON, validate.KindDate, validate.KindEnum,
		validate.KindURL, validate.KindPattern:
	default:
		return validate.Rule{}, fmt.Errorf("unknown kind %q: %w", ps.Kind, ErrInvalidDescriptor)
	}

	opts := validate.Options{
		AllowNull: ps.AllowNull,
		MinLength: ps.MinLength,
		MaxLength: ps.MaxLength,
		Min:       ps.Min,
		Max:       ps.Max,
		Allowed:   ps.Allowed,
		Schema:    ps.Schema,
		Schemes:   ps.Schemes,
	}

	switch {
	case ps.Kind == validate.KindPattern && ps.Pattern == "":
		return validate.Rule{}, fmt.Errorf("pattern kind needs a pattern: %w", ErrInvalidDescriptor)
	case ps.Kind == validate.KindEnum && len(ps.Allowed) == 0:
		return validate.Rule{}, fmt.Errorf("enum kind needs allowed values: %w", ErrInvalidDescriptor)
	}
	if ps.Pattern != "" {
		re, err := validate.AnchorPattern(ps.Pattern)
		if err != nil {
			return validate.Rule{}, fmt.Errorf("pattern: %w", err)
		}
		opts.Pattern = re
	}

	return validate.Rule{Kind: ps.Kind, Options: opts}, nil
}
