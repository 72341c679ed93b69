// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package validation provides struct validation using go-playground/validator
// v10 via a thread-safe singleton, with custom validators for the search
// request vocabulary (date presets, sort modes).
package validation

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one field's validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestError is a collection of field validation failures.
type RequestError struct {
	Fields []FieldError
}

// Error implements the error interface with a combined message.
func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Field+": "+f.Message)
	}
	return strings.Join(msgs, "; ")
}

// First returns the first failing field, for APIs that surface one error at
// a time next to the offending input.
func (e *RequestError) First() FieldError {
	if len(e.Fields) == 0 {
		return FieldError{Field: "unknown", Message: "validation failed"}
	}
	return e.Fields[0]
}

// GetValidator returns the singleton validator. Thread-safe; the instance
// caches struct metadata across calls.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// datepreset: the relative date-range vocabulary of event search.
		_ = validate.RegisterValidation("datepreset", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "", "none", "last3", "last6", "last12", "thisYear", "custom":
				return true
			}
			return false
		})

		// sortmode: merged-list orderings.
		_ = validate.RegisterValidation("sortmode", func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "", "date", "name", "status":
				return true
			}
			return false
		})
	})
	return validate
}

// ValidateStruct validates s, returning nil on success or a *RequestError
// listing every failing field.
func ValidateStruct(s interface{}) *RequestError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: messageFor(fe),
		}
	}
	return &RequestError{Fields: fields}
}

// messageFor renders a human-readable message for one field failure.
func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "datepreset":
		return "must be one of none, last3, last6, last12, thisYear, custom"
	case "sortmode":
		return "must be one of date, name, status"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
