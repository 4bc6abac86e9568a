// Package validate implements the InputValidator: a pure function that
// checks a caller's input bag against a workflow's declared input schema.
// Grounded on the teacher's WorkflowResource.Validate style of collecting
// field-level errors rather than failing on the first one.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/pkg/value"
)

// MissingInput describes one absent required field.
type MissingInput struct {
	Field       string
	Type        domain.InputType
	Description string
}

// InvalidInput describes one field whose provided value doesn't match its
// declared type.
type InvalidInput struct {
	Field   string
	Type    domain.InputType
	Message string
}

// Result is the outcome of validating an input bag.
type Result struct {
	Valid           bool
	Missing         []MissingInput
	Invalid         []InvalidInput
	SuggestedPrompt string
}

// Validate checks input against spec.Input. It is a pure function: no
// side effects, no persisted state, same inputs always yield the same
// Result.
func Validate(spec domain.WorkflowSpec, input map[string]value.Value) Result {
	var res Result
	// Declared params are walked in sorted key order for deterministic
	// message ordering.
	keys := make([]string, 0, len(spec.Input))
	for k := range spec.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		param := spec.Input[field]
		v, present := input[field]
		if !present || v.IsNull() {
			if param.Required {
				res.Missing = append(res.Missing, MissingInput{
					Field: field, Type: param.Type, Description: param.Description,
				})
			}
			continue
		}
		if msg, ok := typeMismatch(param.Type, v); !ok {
			res.Invalid = append(res.Invalid, InvalidInput{Field: field, Type: param.Type, Message: msg})
		}
	}

	res.Valid = len(res.Missing) == 0 && len(res.Invalid) == 0
	if !res.Valid {
		res.SuggestedPrompt = buildPrompt(res.Missing, res.Invalid)
	}
	return res
}

// typeMismatch reports whether v satisfies the declared type. Unknown
// declared types always pass (per the engine contract).
func typeMismatch(t domain.InputType, v value.Value) (string, bool) {
	switch t {
	case domain.InputTypeString:
		if v.Kind() != value.KindStr {
			return fmt.Sprintf("expected string, got %s", v.Kind()), false
		}
	case domain.InputTypeBoolean:
		if v.Kind() != value.KindBool {
			return fmt.Sprintf("expected boolean, got %s", v.Kind()), false
		}
	case domain.InputTypeArray:
		if v.Kind() != value.KindArr {
			return fmt.Sprintf("expected array, got %s", v.Kind()), false
		}
	case domain.InputTypeObject:
		if v.Kind() != value.KindObj {
			return fmt.Sprintf("expected object, got %s", v.Kind()), false
		}
	case domain.InputTypeInteger:
		if i, ok := v.AsInt(); ok {
			_ = i
			return "", true
		}
		if f, ok := v.AsFloat(); ok && f == float64(int64(f)) {
			return "", true
		}
		return fmt.Sprintf("expected whole number, got %s", v.Kind()), false
	case domain.InputTypeNumber:
		if _, ok := v.AsFloat(); !ok {
			return fmt.Sprintf("expected number, got %s", v.Kind()), false
		}
	default:
		return "", true // unknown declared type passes
	}
	return "", true
}

func buildPrompt(missing []MissingInput, invalid []InvalidInput) string {
	var parts []string
	for _, m := range missing {
		if m.Description != "" {
			parts = append(parts, fmt.Sprintf("%s is required (%s)", m.Field, m.Description))
		} else {
			parts = append(parts, fmt.Sprintf("%s is required", m.Field))
		}
	}
	for _, inv := range invalid {
		parts = append(parts, fmt.Sprintf("%s: %s", inv.Field, inv.Message))
	}
	return strings.Join(parts, "; ")
}
