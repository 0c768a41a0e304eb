// Package validate checks and cleans untrusted input before it reaches the
// data layer. Every validator returns an Outcome; callers must use
// Outcome.Value, never the original input.
package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Code identifies why a value was rejected.
type Code string

const (
	CodeRequired        Code = "REQUIRED"
	CodeInvalidType     Code = "INVALID_TYPE"
	CodeTooShort        Code = "TOO_SHORT"
	CodeTooLong         Code = "TOO_LONG"
	CodeInjection       Code = "INJECTION_DETECTED"
	CodeInvalidUUID     Code = "INVALID_UUID"
	CodeInvalidEmail    Code = "INVALID_EMAIL"
	CodeInvalidPhone    Code = "INVALID_PHONE"
	CodeInvalidInteger  Code = "INVALID_INTEGER"
	CodeOutOfRange      Code = "OUT_OF_RANGE"
	CodeInvalidJSON     Code = "INVALID_JSON"
	CodeTooDeep         Code = "TOO_DEEP"
	CodeSchemaMismatch  Code = "SCHEMA_MISMATCH"
	CodeInvalidDate     Code = "INVALID_DATE"
	CodeInvalidEnum     Code = "INVALID_ENUM"
	CodeInvalidURL      Code = "INVALID_URL"
	CodePatternMismatch Code = "PATTERN_MISMATCH"
	CodeUnexpectedField Code = "UNEXPECTED_FIELD"
	CodeUnknownKind     Code = "UNKNOWN_KIND"
)

// Kind names a validator. Kinds are what registry files refer to.
type Kind string

const (
	KindUUID    Kind = "uuid"
	KindEmail   Kind = "email"
	KindPhone   Kind = "phone"
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindJSON    Kind = "json"
	KindDate    Kind = "date"
	KindEnum    Kind = "enum"
	KindURL     Kind = "url"
	KindPattern Kind = "pattern"
)

// MaxJSONDepth bounds nesting of JSON values.
const MaxJSONDepth = 10

// Outcome is the per-value result of a validator.
type Outcome struct {
	Valid   bool
	Value   any
	Code    Code
	Message string
}

func ok(v any) Outcome {
	return Outcome{Valid: true, Value: v}
}

func fail(code Code, msg string) Outcome {
	return Outcome{Code: code, Message: msg}
}

// Options tune a single validator. Zero values mean "no constraint".
type Options struct {
	AllowNull bool
	MinLength int
	MaxLength int
	Min       *int64
	Max       *int64
	// Allowed lists the accepted values for enum validation.
	Allowed []string
	// Pattern must match the whole trimmed value for pattern validation.
	Pattern *regexp.Regexp
	// Schema is an optional JSON Schema document applied by JSON validation.
	Schema string
	// Schemes restricts URL schemes; defaults to http and https.
	Schemes []string
}

// Rule binds a validator kind to its options.
type Rule struct {
	Kind    Kind
	Options Options
}

// Validator runs validators with a fixed injection detector.
type Validator struct {
	detector *Detector
}

// New returns a Validator using the given detector. A nil detector uses the
// default pattern set.
func New(detector *Detector) *Validator {
	if detector == nil {
		detector = DefaultDetector()
	}
	return &Validator{detector: detector}
}

//nolint:gochecknoglobals // shared default validator
var defaultValidator = New(nil)

// Default returns the package-level Validator built on the default patterns.
func Default() *Validator {
	return defaultValidator
}

// Check dispatches value to the validator named by rule.Kind.
func (v *Validator) Check(value any, rule Rule) Outcome {
	switch rule.Kind {
	case KindUUID:
		return v.UUID(value, rule.Options)
	case KindEmail:
		return v.Email(value, rule.Options)
	case KindPhone:
		return v.Phone(value, rule.Options)
	case KindText:
		return v.Text(value, rule.Options)
	case KindInteger:
		return v.Integer(value, rule.Options)
	case KindJSON:
		return v.JSON(value, rule.Options)
	case KindDate:
		return v.Date(value, rule.Options)
	case KindEnum:
		return v.Enum(value, rule.Options)
	case KindURL:
		return v.URL(value, rule.Options)
	case KindPattern:
		return v.Pattern(value, rule.Options)
	default:
		return fail(CodeUnknownKind, fmt.Sprintf("unknown validator kind %q", rule.Kind))
	}
}

// prepareString applies the checks every string validator shares: null
// handling, type check, trimming, length bounds and injection screening.
// done is true when out is final (either a rejection or an allowed null).
func (v *Validator) prepareString(value any, opts Options) (s string, out Outcome, done bool) {
	if value == nil {
		if opts.AllowNull {
			return "", ok(nil), true
		}
		return "", fail(CodeRequired, "value is required"), true
	}

	raw, isString := value.(string)
	if !isString {
		return "", fail(CodeInvalidType, "expected a string"), true
	}

	s = strings.TrimSpace(raw)

	if n := len([]rune(s)); opts.MinLength > 0 && n < opts.MinLength {
		return "", fail(CodeTooShort, fmt.Sprintf("must be at least %d characters", opts.MinLength)), true
	} else if opts.MaxLength > 0 && n > opts.MaxLength {
		return "", fail(CodeTooLong, fmt.Sprintf("must be at most %d characters", opts.MaxLength)), true
	}

	if _, found := v.detector.Detect(s); found {
		return "", fail(CodeInjection, "value contains a disallowed pattern"), true
	}

	return s, Outcome{}, false
}
