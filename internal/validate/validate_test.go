package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/validate"
	"github.com/flowgate/engine/pkg/value"
)

func spec() domain.WorkflowSpec {
	return domain.WorkflowSpec{
		Name: "greet",
		Input: map[string]domain.InputParam{
			"name": {Type: domain.InputTypeString, Required: true, Description: "who to greet"},
			"age":  {Type: domain.InputTypeInteger, Required: false},
		},
		Tasks: []domain.TaskStep{{ID: "a", TaskRef: "a-ref"}},
	}
}

func TestValidate_AllPresentAndValid(t *testing.T) {
	res := validate.Validate(spec(), map[string]value.Value{
		"name": value.Str("Ada"),
		"age":  value.Int(30),
	})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Invalid)
}

func TestValidate_MissingRequired(t *testing.T) {
	res := validate.Validate(spec(), map[string]value.Value{})
	assert.False(t, res.Valid)
	assert.Len(t, res.Missing, 1)
	assert.Equal(t, "name", res.Missing[0].Field)
	assert.Contains(t, res.SuggestedPrompt, "name is required")
}

func TestValidate_InvalidType(t *testing.T) {
	res := validate.Validate(spec(), map[string]value.Value{
		"name": value.Str("Ada"),
		"age":  value.Str("not a number"),
	})
	assert.False(t, res.Valid)
	require := assert.New(t)
	require.Len(res.Invalid, 1)
	require.Equal("age", res.Invalid[0].Field)
}

func TestValidate_ExtraFieldsIgnored(t *testing.T) {
	res := validate.Validate(spec(), map[string]value.Value{
		"name":  value.Str("Ada"),
		"extra": value.Bool(true),
	})
	assert.True(t, res.Valid)
}

func TestValidate_IsPure(t *testing.T) {
	s := spec()
	input := map[string]value.Value{"name": value.Str("Ada")}
	a := validate.Validate(s, input)
	b := validate.Validate(s, input)
	assert.Equal(t, a, b)
}
