package validate

import (
	"fmt"
	"regexp"
)

// Pattern is a named injection signature.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// PatternSource is the uncompiled form of a Pattern, as found in
// configuration files.
type PatternSource struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// DefaultPatternSources is the built-in block list. It is intentionally
// conservative and layered on top of parameterized execution.
//
//nolint:gochecknoglobals // static pattern table
var DefaultPatternSources = []PatternSource{
	{Name: "sql_terminator_keyword", Expr: `(?i)(['"`+"`"+`]|--|/\*)\s*;?\s*(select|union|insert|update|delete|drop|alter|create|truncate|exec|execute|declare|grant)\b`},
	{Name: "sql_keyword_comment", Expr: `(?i)\b(select|union|insert|update|delete|drop|alter|truncate|exec|execute)\b.*(--|/\*|\*/)`},
	{Name: "sql_union_select", Expr: `(?i)\bunion\s+(all\s+)?select\b`},
	{Name: "sql_drop_object", Expr: `(?i)\bdrop\s+(table|database|schema|view|function|procedure)\b`},
	{Name: "sql_tautology_numeric", Expr: `(?i)\b(or|and)\s+['"]?\d+['"]?\s*=\s*['"]?\d+`},
	{Name: "sql_tautology_string", Expr: `(?i)\b(or|and)\s+'[^']*'\s*=\s*'`},
	{Name: "sql_stacked_command", Expr: `(?i)(;\s*(shutdown|waitfor\s+delay)\b|\bxp_cmdshell\b|\bpg_sleep\s*\()`},
	{Name: "script_tag", Expr: `(?i)<\s*/?\s*script\b`},
	{Name: "script_scheme", Expr: `(?i)\b(javascript|vbscript)\s*:`},
	{Name: "html_data_uri", Expr: `(?i)data\s*:\s*text/html`},
	{Name: "inline_event_handler", Expr: `(?i)\bon(load|error|click|dblclick|mouse\w*|key\w*|focus|blur|submit|change|input|abort|unload)\s*=`},
	{Name: "embedded_frame", Expr: `(?i)<\s*(iframe|object|embed|frame|frameset)\b`},
}

// Detector screens strings against a fixed set of injection signatures.
type Detector struct {
	patterns []Pattern
}

// NewDetector returns a Detector over the given patterns.
func NewDetector(patterns ...Pattern) *Detector {
	p := make([]Pattern, len(patterns))
	copy(p, patterns)
	return &Detector{patterns: p}
}

// CompilePatterns compiles pattern sources, failing on the first bad expression.
func CompilePatterns(sources []PatternSource) ([]Pattern, error) {
	out := make([]Pattern, 0, len(sources))
	for _, src := range sources {
		re, err := regexp.Compile(src.Expr)
		if err != nil {
			return nil, fmt.Errorf("validate.CompilePatterns: %s: %w", src.Name, err)
		}
		out = append(out, Pattern{Name: src.Name, Re: re})
	}
	return out, nil
}

//nolint:gochecknoglobals // compiled once
var defaultDetector = NewDetector(mustCompile(DefaultPatternSources)...)

func mustCompile(sources []PatternSource) []Pattern {
	p, err := CompilePatterns(sources)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultDetector returns the detector built from DefaultPatternSources.
func DefaultDetector() *Detector {
	return defaultDetector
}

// Detect reports the name of the first pattern matching s.
func (d *Detector) Detect(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, p := range d.patterns {
		if p.Re.MatchString(s) {
			return p.Name, true
		}
	}
	return "", false
}
