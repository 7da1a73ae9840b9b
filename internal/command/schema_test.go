// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func intp(n int) *int             { return &n }
func floatp(f float64) *float64   { return &f }
func boolp(b bool) *bool          { return &b }

func dispatchCommand(t *testing.T) *Command {
	t.Helper()
	catalog, err := LoadCatalog()
	require.NoError(t, err)
	cmd, ok := catalog.Lookup("diag-evidence")
	require.True(t, ok)
	return cmd
}

func TestValidatePayload_Accepts(t *testing.T) {
	cmd := dispatchCommand(t)
	res := validatePayload(cmd, map[string]any{
		"target": "api",
		"task":   "collect the stack trace from the last crash",
		"scope":  "internal/server only",
	})
	assert.True(t, res.OK, "%v", res.Errors)
}

func TestValidatePayload_UnexpectedProperty(t *testing.T) {
	cmd := dispatchCommand(t)
	res := validatePayload(cmd, map[string]any{
		"target":  "api",
		"task":    "x",
		"bogus":   "nope",
	})
	require.False(t, res.OK)
	assert.Contains(t, res.Errors[0], "$.bogus")
}

func TestValidatePayload_RequiredAnyOf(t *testing.T) {
	cmd := dispatchCommand(t)

	res := validatePayload(cmd, map[string]any{"target": "api"})
	require.False(t, res.OK)
	assert.Contains(t, res.Errors[0], "at least one of")

	// Whitespace-only does not satisfy the predicate.
	res = validatePayload(cmd, map[string]any{"target": "api", "task": "   "})
	assert.False(t, res.OK)

	res = validatePayload(cmd, map[string]any{"target": "api", "rawPrompt": "do it"})
	assert.True(t, res.OK)
}

func TestValidatePayload_RequiredNonEmpty(t *testing.T) {
	catalog, err := LoadCatalog()
	require.NoError(t, err)
	cmd, ok := catalog.Lookup("scope-lock")
	require.True(t, ok)

	res := validatePayload(cmd, map[string]any{"target": "api"})
	require.False(t, res.OK)
	assert.Contains(t, res.Errors[0], "$.scope")

	res = validatePayload(cmd, map[string]any{"target": "api", "scope": "internal/store"})
	assert.True(t, res.OK)
}

func TestWalkSchema_Keywords(t *testing.T) {
	schema := &Schema{
		Type:                 "object",
		AdditionalProperties: boolp(false),
		Required:             []string{"name"},
		Properties: map[string]*Schema{
			"name":  {Type: "string", MinLength: intp(2), MaxLength: intp(5)},
			"count": {Type: "integer", Minimum: floatp(0), Maximum: floatp(10)},
			"tags":  {Type: "array", MinItems: intp(1), MaxItems: intp(3), Items: &Schema{Type: "string"}},
			"level": {Type: "string", Enum: []any{"a", "b"}},
			"mode":  {Const: "fixed"},
			"flag":  {Type: "boolean"},
			"alt": {AnyOf: []*Schema{
				{Type: "string"},
				{Type: "integer"},
			}},
		},
	}

	cases := []struct {
		name    string
		payload map[string]any
		ok      bool
		errLike string
	}{
		{"valid", map[string]any{"name": "abc", "count": float64(3), "tags": []any{"x"},
			"level": "a", "mode": "fixed", "flag": true, "alt": "s"}, true, ""},
		{"missing required", map[string]any{}, false, "required"},
		{"too short", map[string]any{"name": "a"}, false, "minLength"},
		{"too long", map[string]any{"name": "abcdef"}, false, "maxLength"},
		{"wrong type", map[string]any{"name": true}, false, "expected string"},
		{"below minimum", map[string]any{"name": "ab", "count": float64(-1)}, false, "minimum"},
		{"above maximum", map[string]any{"name": "ab", "count": float64(11)}, false, "maximum"},
		{"non-integer", map[string]any{"name": "ab", "count": 1.5}, false, "expected integer"},
		{"empty array", map[string]any{"name": "ab", "tags": []any{}}, false, "minItems"},
		{"bad item", map[string]any{"name": "ab", "tags": []any{true}}, false, "expected string"},
		{"bad enum", map[string]any{"name": "ab", "level": "z"}, false, "enum"},
		{"bad const", map[string]any{"name": "ab", "mode": "other"}, false, "const"},
		{"anyOf int ok", map[string]any{"name": "ab", "alt": float64(3)}, true, ""},
		{"anyOf mismatch", map[string]any{"name": "ab", "alt": true}, false, "anyOf"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errs []string
			walkSchema(schema, any(tc.payload), "$", &errs)
			if tc.ok {
				assert.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
				assert.Contains(t, errs[0], tc.errLike)
			}
		})
	}
}

// Property: the walker is total and deterministic over arbitrary payloads,
// and additionalProperties:false means OK implies every top-level key is a
// declared property.
func TestValidatePayload_Properties(t *testing.T) {
	catalog, err := LoadCatalog()
	require.NoError(t, err)
	cmd, ok := catalog.Lookup("verify-completion")
	require.True(t, ok)

	valueGen := rapid.OneOf(
		rapid.String().AsAny(),
		rapid.Bool().AsAny(),
		rapid.Float64().AsAny(),
		rapid.SliceOfN(rapid.String().AsAny(), 0, 4).AsAny(),
	)

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.MapOfN(
			rapid.StringMatching(`[a-zA-Z]{1,12}`), valueGen, 0, 8,
		).Draw(t, "payload")

		first := validatePayload(cmd, payload)
		second := validatePayload(cmd, payload)
		if first.OK != second.OK || len(first.Errors) != len(second.Errors) {
			t.Fatalf("validation not deterministic: %v vs %v", first, second)
		}
		if first.OK {
			for key := range payload {
				if _, declared := cmd.Schema.Properties[key]; !declared {
					t.Fatalf("accepted undeclared property %q", key)
				}
			}
		}
	})
}
