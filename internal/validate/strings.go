package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

//nolint:gochecknoglobals // compiled once
var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9](?:[a-zA-Z0-9\-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9\-]*[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

const maxEmailLength = 254

// UUID accepts the canonical 36-character textual form only and returns it
// lowercased.
func (v *Validator) UUID(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	if len(s) != 36 {
		return fail(CodeInvalidUUID, "must be a UUID")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fail(CodeInvalidUUID, "must be a UUID")
	}
	return ok(id.String())
}

// Email returns the lowercased address.
func (v *Validator) Email(value any, opts Options) Outcome {
	if opts.MaxLength == 0 {
		opts.MaxLength = maxEmailLength
	}
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	if !emailPattern.MatchString(s) || strings.Contains(s, "..") {
		return fail(CodeInvalidEmail, "must be an email address")
	}
	return ok(strings.ToLower(s))
}

// Phone strips common separators and accepts E.164-shaped numbers.
func (v *Validator) Phone(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	s = phoneNoise.Replace(s)
	if !phonePattern.MatchString(s) {
		return fail(CodeInvalidPhone, "must be a phone number")
	}
	return ok(s)
}

// Text accepts free text and returns its sanitized form.
func (v *Validator) Text(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	return ok(SanitizeText(s))
}

// SanitizeText normalizes CR/LF and tabs to spaces, strips remaining control
// characters and escapes single and double quotes.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f || (r >= 0x80 && r < 0xa0):
			// dropped
		case r == '\'':
			b.WriteString(`''`)
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Enum accepts one of opts.Allowed, compared exactly after trimming.
func (v *Validator) Enum(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	if !slices.Contains(opts.Allowed, s) {
		return fail(CodeInvalidEnum, fmt.Sprintf("must be one of %s", strings.Join(opts.Allowed, ", ")))
	}
	return ok(s)
}

// Pattern requires opts.Pattern to match the whole trimmed value. A match of
// only part of the value is a mismatch.
func (v *Validator) Pattern(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	if opts.Pattern == nil || !matchesWhole(opts.Pattern, s) {
		return fail(CodePatternMismatch, "has an invalid format")
	}
	return ok(s)
}

func matchesWhole(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// AnchorPattern compiles expr so that it only matches a whole value.
func AnchorPattern(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("validate.AnchorPattern: %w", err)
	}
	return re, nil
}

// URL accepts absolute URLs with an allowed scheme and a host.
func (v *Validator) URL(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return fail(CodeInvalidURL, "must be an absolute URL")
	}

	schemes := opts.Schemes
	if len(schemes) == 0 {
		schemes = []string{"http", "https"}
	}
	if !slices.Contains(schemes, strings.ToLower(u.Scheme)) {
		return fail(CodeInvalidURL, fmt.Sprintf("scheme must be one of %s", strings.Join(schemes, ", ")))
	}
	if u.User != nil {
		return fail(CodeInvalidURL, "must not embed credentials")
	}
	return ok(u.String())
}

//nolint:gochecknoglobals // accepted ISO 8601 layouts, most specific first
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// Date accepts ISO 8601 dates and timestamps and returns a UTC time.Time.
func (v *Validator) Date(value any, opts Options) Outcome {
	s, out, done := v.prepareString(value, opts)
	if done {
		return out
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ok(t.UTC())
		}
	}
	return fail(CodeInvalidDate, "must be an ISO 8601 date")
}
