// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import "strings"

// FieldType describes the expected shape of a parameter value. Used by
// introspection surfaces and by presence checking for text fields.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
	FieldDate   FieldType = "date"
	FieldObject FieldType = "object"
)

// Field declares one schema parameter.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema declares an action's parameters. Required fields gate execution;
// recommended fields merely enrich the result and feed the auto-execute gate.
type Schema struct {
	Required    []Field `json:"required,omitempty"`
	Recommended []Field `json:"recommended,omitempty"`
}

// Missing computes which required and recommended fields are absent from
// params.
//
// Description:
//
//	A field counts as present only if it is defined, non-nil, and — for
//	textual values — non-blank after trimming. A whitespace-only answer to
//	a follow-up question must not satisfy a required field.
//
// Outputs:
//   - []string: Missing required field names, in schema order.
//   - []string: Missing recommended field names, in schema order.
func (s Schema) Missing(params Params) (required, recommended []string) {
	for _, f := range s.Required {
		if !present(params, f.Name) {
			required = append(required, f.Name)
		}
	}
	for _, f := range s.Recommended {
		if !present(params, f.Name) {
			recommended = append(recommended, f.Name)
		}
	}
	return required, recommended
}

// present reports whether the named parameter carries a usable value.
func present(params Params, name string) bool {
	v, ok := params[name]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}
