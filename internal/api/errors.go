// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package api

import (
	"errors"
	"net/http"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/logging"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error         string `json:"error"`
	Code          string `json:"code"`
	Field         string `json:"field,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	// Retryable tells the UI to offer a retry affordance.
	Retryable bool `json:"retryable,omitempty"`
}

// toResponse maps the error taxonomy onto HTTP statuses and response bodies.
// Validation and scheduling errors surface inline without correlation ids;
// everything unexpected gets one so users can reference the failure.
func toResponse(err error) (int, ErrorResponse) {
	var (
		ve *apperr.ValidationError
		se *apperr.ScheduledEventError
		nf *apperr.NotFoundError
		jf *apperr.JobFailedError
		pt *apperr.PollTimeoutError
		sv *apperr.ServerError
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ErrorResponse{
			Error: ve.Reason,
			Code:  "validation_error",
			Field: ve.Field,
		}
	case errors.As(err, &se):
		return http.StatusConflict, ErrorResponse{
			Error: se.Error(),
			Code:  "event_scheduled",
		}
	case errors.Is(err, apperr.ErrSessionNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: err.Error(),
			Code:  "session_not_found",
		}
	case errors.As(err, &nf):
		return http.StatusNotFound, ErrorResponse{
			Error: nf.Error(),
			Code:  nf.Kind + "_not_found",
		}
	case errors.As(err, &jf):
		return http.StatusBadGateway, ErrorResponse{
			Error:         jf.Error(),
			Code:          "job_failed",
			CorrelationID: logging.GenerateCorrelationID(),
			Retryable:     true,
		}
	case errors.As(err, &pt):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error:         pt.Error(),
			Code:          "poll_timeout",
			CorrelationID: logging.GenerateCorrelationID(),
			Retryable:     true,
		}
	case errors.As(err, &sv):
		return http.StatusBadGateway, ErrorResponse{
			Error:         "the results backend is unavailable",
			Code:          "backend_error",
			CorrelationID: sv.CorrelationID,
			Retryable:     true,
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:         "internal error",
			Code:          "internal_error",
			CorrelationID: logging.GenerateCorrelationID(),
			Retryable:     true,
		}
	}
}
