// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Schema is the closed subset of JSON Schema the command envelopes use.
// Anything outside this set fails the catalog's strict YAML decode, so a
// typo in a keyword is caught at startup, not at validation time.
type Schema struct {
	Type                 string             `yaml:"type,omitempty" json:"type,omitempty"`
	Enum                 []any              `yaml:"enum,omitempty" json:"enum,omitempty"`
	Const                any                `yaml:"const,omitempty" json:"const,omitempty"`
	MinLength            *int               `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength            *int               `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Minimum              *float64           `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum              *float64           `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinItems             *int               `yaml:"minItems,omitempty" json:"minItems,omitempty"`
	MaxItems             *int               `yaml:"maxItems,omitempty" json:"maxItems,omitempty"`
	Properties           map[string]*Schema `yaml:"properties,omitempty" json:"properties,omitempty"`
	Required             []string           `yaml:"required,omitempty" json:"required,omitempty"`
	AdditionalProperties *bool              `yaml:"additionalProperties,omitempty" json:"additionalProperties,omitempty"`
	Items                *Schema            `yaml:"items,omitempty" json:"items,omitempty"`
	AnyOf                []*Schema          `yaml:"anyOf,omitempty" json:"anyOf,omitempty"`
}

// ValidationResult collects schema violations with their payload paths.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// validatePayload walks the payload against the command's schema envelope
// and the two extra predicates (requiredNonEmpty, requiredAnyOf).
func validatePayload(cmd *Command, payload map[string]any) ValidationResult {
	var errs []string
	walkSchema(cmd.Schema, any(payload), "$", &errs)

	for _, field := range cmd.RequiredNonEmpty {
		v, ok := payload[field]
		s, isStr := v.(string)
		if !ok || (isStr && strings.TrimSpace(s) == "") || v == nil {
			errs = append(errs, fmt.Sprintf("$.%s: must be present and non-empty", field))
		}
	}

	if len(cmd.RequiredAnyOf) > 0 {
		found := false
		for _, field := range cmd.RequiredAnyOf {
			if v, ok := payload[field]; ok {
				if s, isStr := v.(string); !isStr || strings.TrimSpace(s) != "" {
					found = true
					break
				}
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("$: at least one of [%s] must be present and non-empty",
				strings.Join(cmd.RequiredAnyOf, ", ")))
		}
	}

	return ValidationResult{OK: len(errs) == 0, Errors: errs}
}

func walkSchema(s *Schema, value any, path string, errs *[]string) {
	if s == nil {
		return
	}

	if s.Type != "" && !typeMatches(s.Type, value) {
		*errs = append(*errs, fmt.Sprintf("%s: expected %s", path, s.Type))
		return
	}

	if len(s.Enum) > 0 && !containsValue(s.Enum, value) {
		*errs = append(*errs, fmt.Sprintf("%s: not in enum", path))
	}
	if s.Const != nil && !valueEqual(s.Const, value) {
		*errs = append(*errs, fmt.Sprintf("%s: must equal const", path))
	}

	switch v := value.(type) {
	case string:
		if s.MinLength != nil && len(v) < *s.MinLength {
			*errs = append(*errs, fmt.Sprintf("%s: shorter than minLength %d", path, *s.MinLength))
		}
		if s.MaxLength != nil && len(v) > *s.MaxLength {
			*errs = append(*errs, fmt.Sprintf("%s: longer than maxLength %d", path, *s.MaxLength))
		}

	case float64, int, int64:
		n := toFloat(value)
		if s.Minimum != nil && n < *s.Minimum {
			*errs = append(*errs, fmt.Sprintf("%s: below minimum %v", path, *s.Minimum))
		}
		if s.Maximum != nil && n > *s.Maximum {
			*errs = append(*errs, fmt.Sprintf("%s: above maximum %v", path, *s.Maximum))
		}

	case []any:
		if s.MinItems != nil && len(v) < *s.MinItems {
			*errs = append(*errs, fmt.Sprintf("%s: fewer than minItems %d", path, *s.MinItems))
		}
		if s.MaxItems != nil && len(v) > *s.MaxItems {
			*errs = append(*errs, fmt.Sprintf("%s: more than maxItems %d", path, *s.MaxItems))
		}
		if s.Items != nil {
			for i, item := range v {
				walkSchema(s.Items, item, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}

	case map[string]any:
		for _, req := range s.Required {
			if _, ok := v[req]; !ok {
				*errs = append(*errs, fmt.Sprintf("%s.%s: required", path, req))
			}
		}
		for key, val := range v {
			prop, ok := s.Properties[key]
			if !ok {
				if s.AdditionalProperties != nil && !*s.AdditionalProperties {
					*errs = append(*errs, fmt.Sprintf("%s.%s: unexpected property", path, key))
				}
				continue
			}
			walkSchema(prop, val, path+"."+key, errs)
		}
	}

	if len(s.AnyOf) > 0 {
		matched := false
		for _, alt := range s.AnyOf {
			var altErrs []string
			walkSchema(alt, value, path, &altErrs)
			if len(altErrs) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			*errs = append(*errs, fmt.Sprintf("%s: matches no anyOf variant", path))
		}
	}
}

func typeMatches(typ string, value any) bool {
	switch typ {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch n := value.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	case "array":
		_, ok := value.([]any)
		return ok
	}
	return false
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func containsValue(set []any, v any) bool {
	for _, entry := range set {
		if valueEqual(entry, v) {
			return true
		}
	}
	return false
}

// valueEqual compares across the int/float boundary YAML and JSON decoding
// disagree on.
func valueEqual(a, b any) bool {
	af, aNum := numeric(a)
	bf, bNum := numeric(b)
	if aNum && bNum {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
