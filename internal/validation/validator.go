// Portcullis - API Request Gateway and Pipeline Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/portcullis

// Package validation checks a request's path parameters, query
// parameters, body, and headers against per-endpoint declared schemas.
//
// Sections are validated in the fixed order params, query, body,
// headers, failing fast at the first section that fails. Within a
// section the first violating field is reported with its path and a
// human-readable constraint description.
//
// Constraint vocabulary is go-playground/validator v10 tag syntax,
// applied per field after type coercion:
//
//	schema := validation.SectionSchema{
//	    "category": {Type: validation.TypeString, Rules: "min=2,max=64"},
//	    "limit":    {Type: validation.TypeInt, Rules: "min=1,max=1000"},
//	    "email":    {Required: true, Type: validation.TypeString, Rules: "email"},
//	}
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// FieldType declares the expected type of a field before constraint
// checks run. String sections (params, query, headers) are coerced from
// their raw text; body fields are checked against their JSON type.
type FieldType string

const (
	// TypeString accepts any text value.
	TypeString FieldType = "string"

	// TypeInt requires an integer value.
	TypeInt FieldType = "int"

	// TypeFloat requires a numeric value.
	TypeFloat FieldType = "float"

	// TypeBool requires a boolean value.
	TypeBool FieldType = "bool"

	// TypeAny skips the type check; constraints still apply.
	TypeAny FieldType = "any"
)

// FieldRule declares the constraints on one field.
type FieldRule struct {
	// Required makes absence of the field a violation.
	Required bool

	// Type is checked (and coerced for string sections) before Rules.
	// Empty means TypeAny.
	Type FieldType

	// Rules is a go-playground/validator tag expression applied to the
	// coerced value, e.g. "min=1,max=1000" or "oneof=asc desc".
	Rules string
}

// SectionSchema maps field paths to their rules. Body field paths may be
// dotted to reach into nested objects ("customer.email").
type SectionSchema map[string]FieldRule

// Config declares the schemas for each request section. Nil sections are
// not validated.
type Config struct {
	Params  SectionSchema
	Query   SectionSchema
	Body    SectionSchema
	Headers SectionSchema
}

// Empty reports whether no section declares a schema.
func (c *Config) Empty() bool {
	return c == nil ||
		(len(c.Params) == 0 && len(c.Query) == 0 && len(c.Body) == 0 && len(c.Headers) == 0)
}

// SectionError reports the first violation found: the section, the field
// path within it, and a human-readable constraint description.
type SectionError struct {
	Section string
	Field   string
	Message string
}

// Error implements the error interface.
func (e *SectionError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Section, e.Field, e.Message)
}

// FieldPath returns the fully qualified "section.field" path.
func (e *SectionError) FieldPath() string {
	return e.Section + "." + e.Field
}

// Validator validates request sections against declared schemas.
// Safe for concurrent use; the underlying validator caches per-tag
// compilation.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate checks the sections in fixed order params, query, body,
// headers, returning the first violation or nil. rawBody is the
// unparsed payload; it is only parsed when a body schema is declared,
// and malformed JSON is itself a violation on the "body" field.
// On success the parsed body (or nil) is returned for downstream use.
func (val *Validator) Validate(cfg *Config, params, query, headers map[string]string, rawBody []byte) (map[string]interface{}, *SectionError) {
	if cfg.Empty() {
		return nil, nil
	}

	if err := val.validateStringSection("params", params, cfg.Params); err != nil {
		return nil, err
	}
	if err := val.validateStringSection("query", query, cfg.Query); err != nil {
		return nil, err
	}

	var body map[string]interface{}
	if len(cfg.Body) > 0 {
		if len(rawBody) == 0 {
			rawBody = []byte("{}")
		}
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return nil, &SectionError{
				Section: "body",
				Field:   "body",
				Message: "must be a well-formed JSON object",
			}
		}
		if err := val.validateBodySection(body, cfg.Body); err != nil {
			return nil, err
		}
	}

	if err := val.validateStringSection("headers", headers, cfg.Headers); err != nil {
		return nil, err
	}

	return body, nil
}

// validateStringSection validates a string-valued section (params,
// query, headers) with type coercion.
func (val *Validator) validateStringSection(section string, data map[string]string, schema SectionSchema) *SectionError {
	for _, field := range sortedFields(schema) {
		rule := schema[field]

		raw, present := lookupString(section, data, field)
		if !present || raw == "" {
			if rule.Required {
				return &SectionError{Section: section, Field: field, Message: field + " is required"}
			}
			continue
		}

		value, err := coerceString(raw, rule.Type)
		if err != nil {
			return &SectionError{Section: section, Field: field, Message: fmt.Sprintf("%s %s", field, err)}
		}

		if verr := val.checkRules(field, value, rule.Rules); verr != nil {
			return &SectionError{Section: section, Field: field, Message: verr.Error()}
		}
	}
	return nil
}

// validateBodySection validates parsed JSON body fields, supporting
// dotted paths into nested objects.
func (val *Validator) validateBodySection(body map[string]interface{}, schema SectionSchema) *SectionError {
	for _, field := range sortedFields(schema) {
		rule := schema[field]

		value, present := lookupPath(body, field)
		if !present || value == nil {
			if rule.Required {
				return &SectionError{Section: "body", Field: field, Message: field + " is required"}
			}
			continue
		}

		coerced, err := coerceJSON(value, rule.Type)
		if err != nil {
			return &SectionError{Section: "body", Field: field, Message: fmt.Sprintf("%s %s", field, err)}
		}

		if verr := val.checkRules(field, coerced, rule.Rules); verr != nil {
			return &SectionError{Section: "body", Field: field, Message: verr.Error()}
		}
	}
	return nil
}

// checkRules applies a validator tag expression to a single value.
func (val *Validator) checkRules(field string, value interface{}, rules string) error {
	if rules == "" {
		return nil
	}

	err := val.v.Var(value, rules)
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		return fmt.Errorf("%s", translateError(field, verrs[0], value))
	}
	return fmt.Errorf("%s failed validation", field)
}

// lookupString finds a field in a string section. Header lookups are
// case-insensitive per transport convention.
func lookupString(section string, data map[string]string, field string) (string, bool) {
	if v, ok := data[field]; ok {
		return v, true
	}
	if section == "headers" {
		for k, v := range data {
			if strings.EqualFold(k, field) {
				return v, true
			}
		}
	}
	return "", false
}

// lookupPath traverses nested JSON objects by dotted path.
func lookupPath(body map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = body
	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// coerceString converts a raw string value to the declared type.
func coerceString(raw string, t FieldType) (interface{}, error) {
	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer")
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	default:
		return raw, nil
	}
}

// coerceJSON checks a parsed JSON value against the declared type.
// JSON numbers arrive as float64; integral floats satisfy TypeInt.
func coerceJSON(value interface{}, t FieldType) (interface{}, error) {
	switch t {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		return s, nil
	case TypeInt:
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return nil, fmt.Errorf("must be an integer")
		}
		return int64(f), nil
	case TypeFloat:
		f, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("must be a number")
		}
		return f, nil
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	default:
		return value, nil
	}
}

// sortedFields returns schema field names in deterministic order so the
// reported first violation is stable.
func sortedFields(schema SectionSchema) []string {
	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0 && fields[j] < fields[j-1]; j-- {
			fields[j], fields[j-1] = fields[j-1], fields[j]
		}
	}
	return fields
}

// errorMessageTemplates maps validation tags to message templates.
var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email address",
	"url":      "%s must be a valid URL",
	"uuid":     "%s must be a valid UUID",
	"datetime": "%s must be a valid date/time",
}

// errorMessageWithParam maps validation tags to templates that include
// the tag parameter.
var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
	"len":   "%s must have length %s",
}

// translateError converts a validator.FieldError to a human-readable
// message using the caller-supplied field name (Var-level validation
// carries no field names).
func translateError(field string, fe validator.FieldError, value interface{}) string {
	tag := fe.Tag()
	param := fe.Param()

	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}

	_, isString := value.(string)
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
