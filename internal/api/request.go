// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package api

import (
	"time"

	"github.com/pitwall-app/pitwall/internal/apperr"
)

// parseDateField parses a bare ISO date from a request body, attributing a
// failure to the named field.
func parseDateField(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, apperr.NewValidation(field, "required for a custom range")
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, apperr.NewValidation(field, "must be an ISO date (YYYY-MM-DD)")
	}
	return &t, nil
}
