package validate_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/relaygate/internal/validate"
)

func messageSchema() validate.Schema {
	return validate.Schema{
		"recipient": {Kind: validate.KindPhone},
		"body":      {Kind: validate.KindText, Options: validate.Options{MaxLength: 1600}},
		"channel":   {Kind: validate.KindEnum, Options: validate.Options{Allowed: []string{"sms", "whatsapp"}}},
		"note":      {Kind: validate.KindText, Options: validate.Options{AllowNull: true}},
	}
}

func TestValidateSchema_HappyPath(t *testing.T) {
	t.Parallel()

	res := validate.ValidateSchema(map[string]any{
		"recipient": "+1 415 555 2671",
		"body":      "Your code is 1234\nThanks",
		"channel":   "sms",
	}, messageSchema())

	require.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "+14155552671", res.Data["recipient"])
	assert.Equal(t, "Your code is 1234 Thanks", res.Data["body"])
	assert.Equal(t, "sms", res.Data["channel"])
	assert.Contains(t, res.Data, "note")
	assert.Nil(t, res.Data["note"])
}

func TestValidateSchema_AggregatesAllErrors(t *testing.T) {
	t.Parallel()

	res := validate.ValidateSchema(map[string]any{
		"recipient": "nope",
		"body":      42,
		"channel":   "fax",
		"extra":     "surprise",
	}, messageSchema())

	require.False(t, res.Valid)
	assert.Nil(t, res.Data)
	assert.Len(t, res.Errors, 4)
	assert.Equal(t, validate.CodeInvalidPhone, res.Errors["recipient"].Code)
	assert.Equal(t, validate.CodeInvalidType, res.Errors["body"].Code)
	assert.Equal(t, validate.CodeInvalidEnum, res.Errors["channel"].Code)
	assert.Equal(t, validate.CodeUnexpectedField, res.Errors["extra"].Code)
}

func TestValidateSchema_MissingRequired(t *testing.T) {
	t.Parallel()

	res := validate.ValidateSchema(map[string]any{"channel": "sms"}, messageSchema())

	require.False(t, res.Valid)
	assert.Equal(t, validate.CodeRequired, res.Errors["recipient"].Code)
	assert.Equal(t, validate.CodeRequired, res.Errors["body"].Code)
	assert.NotContains(t, res.Errors, "note")
}

func TestValidateSchema_InjectionNotPassedThrough(t *testing.T) {
	t.Parallel()

	res := validate.ValidateSchema(map[string]any{
		"recipient": "+14155552671",
		"body":      `"; DROP TABLE users; --`,
		"channel":   "sms",
	}, messageSchema())

	require.False(t, res.Valid)
	assert.Equal(t, validate.CodeInjection, res.Errors["body"].Code)
	assert.Nil(t, res.Data)
}

func TestCustomDetector(t *testing.T) {
	t.Parallel()

	patterns, err := validate.CompilePatterns([]validate.PatternSource{
		{Name: "forbidden_word", Expr: `(?i)\bbanana\b`},
	})
	require.NoError(t, err)

	v := validate.New(validate.NewDetector(patterns...))

	out := v.Text("I like Banana bread", validate.Options{})
	assert.Equal(t, validate.CodeInjection, out.Code)

	// The default signatures are not part of a custom detector.
	out = v.Text("<script>", validate.Options{})
	assert.True(t, out.Valid)

	_, err = validate.CompilePatterns([]validate.PatternSource{{Name: "broken", Expr: `(`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestDetector_ReportsPatternName(t *testing.T) {
	t.Parallel()

	name, found := validate.DefaultDetector().Detect("1 union all select 2")
	require.True(t, found)
	assert.Equal(t, "sql_union_select", name)

	_, found = validate.DefaultDetector().Detect("")
	assert.False(t, found)

	d := validate.NewDetector(validate.Pattern{Name: "digits", Re: regexp.MustCompile(`\d{4}`)})
	name, found = d.Detect("pin 1234")
	require.True(t, found)
	assert.Equal(t, "digits", name)
}
