package validate

import "sort"

// Schema maps field names to the rule each field must satisfy.
type Schema map[string]Rule

// FieldError describes a rejected field.
type FieldError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// SchemaResult is the outcome of validating a whole object. Data holds only
// sanitized values and is nil when Valid is false.
type SchemaResult struct {
	Valid  bool
	Data   map[string]any
	Errors map[string]FieldError
}

// ValidateSchema validates every field of data against schema. It does not
// stop at the first failing field: the returned Errors covers all of them.
// Fields present in data but absent from schema are rejected.
func (v *Validator) ValidateSchema(data map[string]any, schema Schema) SchemaResult {
	sanitized := make(map[string]any, len(schema))
	errs := make(map[string]FieldError)

	for _, field := range sortedFields(schema) {
		rule := schema[field]
		value, present := data[field]
		if !present {
			value = nil
		}

		out := v.Check(value, rule)
		if !out.Valid {
			errs[field] = FieldError{Code: out.Code, Message: out.Message}
			continue
		}
		sanitized[field] = out.Value
	}

	for field := range data {
		if _, declared := schema[field]; !declared {
			errs[field] = FieldError{Code: CodeUnexpectedField, Message: "field is not accepted"}
		}
	}

	if len(errs) > 0 {
		return SchemaResult{Errors: errs}
	}
	return SchemaResult{Valid: true, Data: sanitized, Errors: map[string]FieldError{}}
}

// ValidateSchema runs the default Validator.
func ValidateSchema(data map[string]any, schema Schema) SchemaResult {
	return defaultValidator.ValidateSchema(data, schema)
}

func sortedFields(schema Schema) []string {
	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
