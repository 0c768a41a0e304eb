package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//nolint:gochecknoglobals // sentinel error
var errInvalidJSON = errors.New("validate: invalid JSON")

// Integer accepts integral numbers only; numeric strings are rejected rather
// than coerced.
func (v *Validator) Integer(value any, opts Options) Outcome {
	if value == nil {
		if opts.AllowNull {
			return ok(nil)
		}
		return fail(CodeRequired, "value is required")
	}

	n, out, done := toInt64(value)
	if done {
		return out
	}

	if opts.Min != nil && n < *opts.Min {
		return fail(CodeOutOfRange, fmt.Sprintf("must be >= %d", *opts.Min))
	}
	if opts.Max != nil && n > *opts.Max {
		return fail(CodeOutOfRange, fmt.Sprintf("must be <= %d", *opts.Max))
	}
	return ok(n)
}

func toInt64(value any) (int64, Outcome, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), Outcome{}, false
	case int8:
		return int64(n), Outcome{}, false
	case int16:
		return int64(n), Outcome{}, false
	case int32:
		return int64(n), Outcome{}, false
	case int64:
		return n, Outcome{}, false
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fail(CodeOutOfRange, "integer overflows int64"), true
		}
		return int64(n), Outcome{}, false
	case uint8:
		return int64(n), Outcome{}, false
	case uint16:
		return int64(n), Outcome{}, false
	case uint32:
		return int64(n), Outcome{}, false
	case uint64:
		if n > math.MaxInt64 {
			return 0, fail(CodeOutOfRange, "integer overflows int64"), true
		}
		return int64(n), Outcome{}, false
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, fail(CodeInvalidInteger, "must be an integer"), true
		}
		if n >= 1<<63 || n < -(1<<63) {
			return 0, fail(CodeOutOfRange, "integer overflows int64"), true
		}
		return int64(n), Outcome{}, false
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fail(CodeInvalidInteger, "must be an integer"), true
		}
		return i, Outcome{}, false
	default:
		return 0, fail(CodeInvalidType, "expected a number"), true
	}
}

// JSON accepts either a JSON document encoded as a string or an already
// decoded object/array. Nesting deeper than MaxJSONDepth is rejected, and
// every string key and leaf is screened for injection signatures.
func (v *Validator) JSON(value any, opts Options) Outcome {
	if value == nil {
		if opts.AllowNull {
			return ok(nil)
		}
		return fail(CodeRequired, "value is required")
	}

	var doc any
	switch t := value.(type) {
	case string:
		s := strings.TrimSpace(t)
		if opts.MaxLength > 0 && len(s) > opts.MaxLength {
			return fail(CodeTooLong, fmt.Sprintf("must be at most %d bytes", opts.MaxLength))
		}
		decoded, err := DecodeJSON([]byte(s))
		if err != nil {
			return fail(CodeInvalidJSON, "must be valid JSON")
		}
		doc = decoded
	case map[string]any, []any:
		doc = t
	default:
		return fail(CodeInvalidType, "expected a JSON object or array")
	}

	if Depth(doc) > MaxJSONDepth {
		return fail(CodeTooDeep, fmt.Sprintf("nesting exceeds %d levels", MaxJSONDepth))
	}

	if v.containsInjection(doc) {
		return fail(CodeInjection, "value contains a disallowed pattern")
	}

	if opts.Schema != "" {
		result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(opts.Schema), gojsonschema.NewGoLoader(doc))
		if err != nil {
			return fail(CodeSchemaMismatch, "schema could not be evaluated")
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.Field()+": "+e.Description())
			}
			return fail(CodeSchemaMismatch, strings.Join(msgs, "; "))
		}
	}

	return ok(doc)
}

// DecodeJSON decodes a single JSON document, keeping numbers as json.Number.
func DecodeJSON(raw []byte) (any, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("validate.DecodeJSON: %w", errInvalidJSON)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("validate.DecodeJSON: %w", err)
	}
	return out, nil
}

// Depth returns the nesting depth of a decoded JSON value; scalars are 0.
func Depth(v any) int {
	switch t := v.(type) {
	case map[string]any:
		deepest := 0
		for _, child := range t {
			if d := Depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, child := range t {
			if d := Depth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 0
	}
}

func (v *Validator) containsInjection(doc any) bool {
	switch t := doc.(type) {
	case string:
		_, found := v.detector.Detect(t)
		return found
	case map[string]any:
		for k, child := range t {
			if _, found := v.detector.Detect(k); found {
				return true
			}
			if v.containsInjection(child) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if v.containsInjection(child) {
				return true
			}
		}
	}
	return false
}
