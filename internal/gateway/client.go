// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

/*
client.go - Backend API Client

This file provides the HTTP client for the Pitwall backend's REST API, which
fronts both the local event database and the LiveRC provider.

Client Features:
  - HTTP client with configurable timeout (separate long timeout for imports)
  - Automatic HTTP 429 rate limit handling with exponential backoff
  - Dual-shape JSON normalization via the wire structs in wire.go
  - Context support for cancellation and timeouts

Resilience Mechanisms:
  - Rate Limiting: Exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429
  - Retries: Max 5 attempts for rate-limited requests
  - Error classification: network failures become TransientNetworkError so
    callers can distinguish retryable conditions from hard failures

Related Files:
  - types.go: Backend interface and normalized result types
  - wire.go: dual-case wire structs and envelope handling
  - breaker.go: circuit breaker wrapper around discovery calls
*/

//nolint:staticcheck // File documentation, not package doc
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/models"
)

// maxErrorBodySize limits the response body read for error reporting.
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB).
func readBodyForError(r io.Reader) []byte {
	limited := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// Client handles communication with the Pitwall backend HTTP API.
//
// Import submissions use a longer timeout than other calls because the
// backend may ingest synchronously for shallow depths.
//
// Thread Safety: safe for concurrent use. Each request creates its own
// HTTP request.
type Client struct {
	baseURL        string
	client         *http.Client
	importClient   *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a backend API client from configuration.
func NewClient(cfg *config.BackendConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		importClient: &http.Client{
			Timeout: cfg.ImportTimeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryBaseDelay: cfg.RetryBaseDelay,
	}
}

// doWithRateLimit performs an HTTP request with automatic 429 handling.
// Implements exponential backoff (1s, 2s, 4s, 8s, 16s), honoring a
// Retry-After header when present. The context cancels backoff waits.
func (c *Client) doWithRateLimit(ctx context.Context, hc *http.Client, method, reqURL string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := hc.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, &apperr.TransientNetworkError{Op: method + " " + reqURL, Err: err}
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			lastErr = fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// call performs a request against the backend, unwraps the response envelope,
// classifies HTTP and envelope errors, and decodes the payload into result.
func (c *Client) call(ctx context.Context, hc *http.Client, method, path string, query url.Values, body, result interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	resp, err := c.doWithRateLimit(ctx, hc, method, reqURL, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return &apperr.TransientNetworkError{Op: method + " " + path, Err: err}
	}

	if err := c.classifyStatus(resp.StatusCode, path, respBody); err != nil {
		return err
	}

	data, code, message := unwrapEnvelope(respBody)
	if code != "" {
		return c.classifyCode(code, message, path)
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// classifyStatus maps non-2xx HTTP statuses onto error types. Conflict
// responses carry an envelope code that classifyCode refines further.
func (c *Client) classifyStatus(status int, path string, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return &apperr.NotFoundError{Kind: "resource", ID: path}
	case status == http.StatusConflict:
		_, code, message := unwrapEnvelope(body)
		if code != "" {
			return c.classifyCode(code, message, path)
		}
		return apperr.ErrAlreadyInProgress
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return &apperr.TransientNetworkError{
			Op:  path,
			Err: fmt.Errorf("backend returned HTTP %d: %s", status, readBodyForError(bytes.NewReader(body))),
		}
	default:
		return fmt.Errorf("backend returned HTTP %d for %s: %s", status, path, readBodyForError(bytes.NewReader(body)))
	}
}

// classifyCode maps envelope error codes onto error types.
func (c *Client) classifyCode(code, message, path string) error {
	if isInProgressCode(code) {
		return apperr.ErrAlreadyInProgress
	}
	if message == "" {
		message = code
	}
	return fmt.Errorf("backend error for %s: %s", path, message)
}

// formatDate renders an optional bound as the backend's bare ISO date.
func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// ListTracks retrieves the full track catalog.
func (c *Client) ListTracks(ctx context.Context) ([]models.Track, error) {
	var wire struct {
		Tracks []wireTrack `json:"tracks"`
	}
	if err := c.call(ctx, c.client, http.MethodGet, "/api/v1/tracks", nil, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Track, 0, len(wire.Tracks))
	for i := range wire.Tracks {
		out = append(out, wire.Tracks[i].normalize())
	}
	return out, nil
}

// SearchEvents queries the local database for events at a track within an
// optional date range.
func (c *Client) SearchEvents(ctx context.Context, trackID string, start, end *time.Time) (*EventSearchResult, error) {
	query := url.Values{}
	query.Set("track_id", trackID)
	if s := formatDate(start); s != "" {
		query.Set("start_date", s)
	}
	if e := formatDate(end); e != "" {
		query.Set("end_date", e)
	}

	var wire wireEventSearch
	if err := c.call(ctx, c.client, http.MethodGet, "/api/v1/events/search", query, nil, &wire); err != nil {
		return nil, err
	}
	return wire.normalize(), nil
}

// DiscoverEvents asks the backend to query the provider for events at a
// track, split into new and already-known sets.
func (c *Client) DiscoverEvents(ctx context.Context, req DiscoverRequest) (*DiscoveryResult, error) {
	body := map[string]interface{}{
		"track_id":            req.TrackID,
		"track_slug":          req.TrackSlug,
		"existing_source_ids": req.ExistingSourceIDs,
	}
	if s := formatDate(req.Start); s != "" {
		body["start_date"] = s
	}
	if e := formatDate(req.End); e != "" {
		body["end_date"] = e
	}

	var wire wireDiscovery
	if err := c.call(ctx, c.client, http.MethodPost, "/api/v1/events/discover", nil, body, &wire); err != nil {
		return nil, err
	}
	return wire.normalize(), nil
}

// GetEvent retrieves a single event's ingest status by local id.
func (c *Client) GetEvent(ctx context.Context, id string) (*EventStatusRecord, error) {
	var wire wireStatusRecord
	path := "/api/v1/events/" + url.PathEscape(id)
	if err := c.call(ctx, c.client, http.MethodGet, path, nil, nil, &wire); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return nil, &apperr.NotFoundError{Kind: "event", ID: id}
		}
		return nil, err
	}
	return wire.normalize(), nil
}

// SubmitImport requests ingestion of an event or practice day. The backend
// either completes synchronously and returns a result, or queues a job and
// returns its id.
func (c *Client) SubmitImport(ctx context.Context, req ImportRequest) (*ImportSubmission, error) {
	body := map[string]interface{}{
		"track_id":     req.TrackID,
		"ingest_depth": req.Depth,
	}
	if req.Practice {
		body["source_practice_id"] = req.SourceEventID
		body["practice"] = true
	} else {
		body["source_event_id"] = req.SourceEventID
	}
	if req.EventID != "" && !models.IsPseudoID(req.EventID) {
		body["event_id"] = req.EventID
	}

	var wire wireImportResult
	if err := c.call(ctx, c.importClient, http.MethodPost, "/api/v1/ingestion/imports", nil, body, &wire); err != nil {
		return nil, err
	}
	return wire.normalize(), nil
}

// GetJob retrieves the status of a queued ingestion job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	var wire wireJob
	path := "/api/v1/ingestion/jobs/" + url.PathEscape(jobID)
	if err := c.call(ctx, c.client, http.MethodGet, path, nil, nil, &wire); err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return nil, &apperr.NotFoundError{Kind: "job", ID: jobID}
		}
		return nil, err
	}
	return wire.normalize(), nil
}

// SearchPracticeDays queries the local database for practice days at a track.
func (c *Client) SearchPracticeDays(ctx context.Context, trackID string, start, end *time.Time) ([]models.PracticeDay, error) {
	query := url.Values{}
	query.Set("track_id", trackID)
	if s := formatDate(start); s != "" {
		query.Set("start_date", s)
	}
	if e := formatDate(end); e != "" {
		query.Set("end_date", e)
	}

	var wire wirePracticeSearch
	if err := c.call(ctx, c.client, http.MethodGet, "/api/v1/practice-days/search", query, nil, &wire); err != nil {
		return nil, err
	}
	return wire.normalize(), nil
}

// DiscoverPracticeDays asks the backend to query the provider for practice
// days at a track.
func (c *Client) DiscoverPracticeDays(ctx context.Context, req DiscoverRequest) (*PracticeDiscoveryResult, error) {
	body := map[string]interface{}{
		"track_id":            req.TrackID,
		"track_slug":          req.TrackSlug,
		"existing_source_ids": req.ExistingSourceIDs,
	}
	if s := formatDate(req.Start); s != "" {
		body["start_date"] = s
	}
	if e := formatDate(req.End); e != "" {
		body["end_date"] = e
	}

	var wire wirePracticeDiscovery
	if err := c.call(ctx, c.client, http.MethodPost, "/api/v1/practice-days/discover", nil, body, &wire); err != nil {
		return nil, err
	}
	return wire.normalize(), nil
}
