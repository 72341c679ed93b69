// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package ingest drives event imports from "not imported" to "fully
// imported": it submits the import, polls the event's authoritative depth
// and any queued job handle until a terminal state, recovers from transient
// network failures by re-querying authoritative state, and updates the
// session's reconciliation view in place.
package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"golang.org/x/time/rate"

	"github.com/pitwall-app/pitwall/internal/apperr"
	"github.com/pitwall-app/pitwall/internal/config"
	"github.com/pitwall-app/pitwall/internal/gateway"
	"github.com/pitwall-app/pitwall/internal/logging"
	"github.com/pitwall-app/pitwall/internal/metrics"
	"github.com/pitwall-app/pitwall/internal/models"
	"github.com/pitwall-app/pitwall/internal/reconcile"
	"github.com/pitwall-app/pitwall/internal/store"
)

// Orchestrator runs import cycles. At most one active cycle exists per
// session+event id; a second start while one is active is an idempotent
// no-op.
type Orchestrator struct {
	backend gateway.Backend
	store   store.Store
	cfg     config.ImportConfig
	notify  notifier

	// limiter caps the aggregate backend poll rate across all loops.
	limiter *rate.Limiter

	pollers *pollRegistry

	mu       sync.Mutex
	attempts map[string]*attempt

	// baseCtx parents all background work so shutdown cancels everything.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the import orchestrator. The publisher may be nil
// when no WebSocket delivery is wanted (tests).
func NewOrchestrator(backend gateway.Backend, st store.Store, cfg config.ImportConfig, pub message.Publisher) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		backend:  backend,
		store:    st,
		cfg:      cfg,
		notify:   notifier{publisher: pub},
		limiter:  rate.NewLimiter(rate.Limit(cfg.PollRatePerSecond), 1),
		pollers:  newPollRegistry(),
		attempts: make(map[string]*attempt),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// NotifyDiscoveryMerged publishes a discovery_merged notification so
// WebSocket clients refresh their view when background discovery appended
// rows. Wired as the reconciliation engine's merge callback.
func (o *Orchestrator) NotifyDiscoveryMerged(sessionID string, merged int) {
	o.notify.publish(Notification{
		Type:      EventDiscoveryMerged,
		SessionID: sessionID,
		Merged:    merged,
	})
}

// StopSession cancels all polling for a session. Registered as the session
// registry's eviction callback.
func (o *Orchestrator) StopSession(sessionID string) {
	o.pollers.StopSession(sessionID)

	prefix := sessionID + "/"
	o.mu.Lock()
	for key := range o.attempts {
		if strings.HasPrefix(key, prefix) {
			delete(o.attempts, key)
		}
	}
	o.mu.Unlock()
}

// Shutdown cancels every cycle and waits for background work to drain.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.pollers.StopAll()
	o.wg.Wait()
}

// Phase returns the current phase for a session+event pair.
func (o *Orchestrator) Phase(sessionID, eventID string) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	if a, ok := o.attempts[pollKey(sessionID, eventID)]; ok {
		return a.Phase
	}
	return PhaseIdle
}

// StartImport begins an import cycle for one entry of a session's merged
// list. It fails fast for future-dated events, no-ops when a cycle is
// already active for the id, and otherwise returns as soon as the cycle is
// underway; completion is observed through session snapshots and the
// notification topic.
func (o *Orchestrator) StartImport(s *reconcile.Session, entry models.Entry, trackID string) error {
	now := time.Now()
	if entry.IsFuture(now) {
		return &apperr.ScheduledEventError{EventID: entry.ID(), EventName: entry.Name()}
	}

	eventID := entry.ID()
	key := pollKey(s.ID, eventID)

	o.mu.Lock()
	a, ok := o.attempts[key]
	if ok && a.Phase.Active() {
		o.mu.Unlock()
		logging.Debug().Str("event_id", eventID).Msg("Import already active, ignoring duplicate start")
		return nil
	}
	if !ok {
		a = &attempt{Phase: PhaseIdle}
		o.attempts[key] = a
	}
	if a.Phase.Terminal() {
		// Retry after a failed attempt, or a fresh import of a row the
		// backend has since forgotten.
		a.Phase = PhaseIdle
	}
	if err := a.transition(PhaseSubmitting, "", ""); err != nil {
		o.mu.Unlock()
		return err
	}
	o.mu.Unlock()

	s.SetOverride(eventID, models.StatusImporting)
	progress := models.ImportProgress{
		EventID:   eventID,
		Stage:     "Starting import...",
		StartedAt: now,
		UpdatedAt: now,
	}
	s.SetProgress(progress)
	o.notify.publish(Notification{
		Type:      EventProgress,
		SessionID: s.ID,
		EventID:   eventID,
		Status:    models.StatusImporting,
		Stage:     progress.Stage,
	})

	// The status poller starts before the submit call so progress is
	// visible even when the submit itself is slow. The two paths are
	// decoupled: whichever observes completion first wins, the other
	// becomes a no-op.
	statusCtx, statusDone := o.pollers.Start(o.baseCtx, key)
	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		defer statusDone()
		o.pollStatus(statusCtx, s, key, eventID, now)
	}()
	go func() {
		defer o.wg.Done()
		o.submit(o.baseCtx, s, key, entry, trackID, now)
	}()

	return nil
}

// submit performs the import submit call and routes its outcome.
func (o *Orchestrator) submit(ctx context.Context, s *reconcile.Session, key string, entry models.Entry, trackID string, startedAt time.Time) {
	eventID := entry.ID()
	req := gateway.ImportRequest{
		EventID:       eventID,
		SourceEventID: entry.SourceID(),
		TrackID:       trackID,
		Depth:         models.DepthLapsFull,
		Practice:      entry.Kind == models.KindPractice,
	}

	sub, err := o.backend.SubmitImport(ctx, req)
	switch {
	case err == nil:
		o.handleSubmission(ctx, s, key, entry, sub, startedAt)
	case apperr.IsBenignImportSignal(err):
		// Idempotency signal: the backend is already importing this
		// event. The status poller keeps running and will observe the
		// terminal depth.
		logging.Info().Str("event_id", eventID).Msg("Import already in progress on backend")
		o.toPhase(key, PhaseQueued, "", "")
	case isTransient(err):
		o.recoverAfterNetworkFailure(ctx, s, key, entry, trackID, startedAt, err)
	case errors.Is(err, context.Canceled):
		// Shutdown or session eviction; leave state as-is.
	default:
		o.failImport(s, key, eventID, err)
	}
}

// handleSubmission routes a successful submit response.
func (o *Orchestrator) handleSubmission(ctx context.Context, s *reconcile.Session, key string, entry models.Entry, sub *gateway.ImportSubmission, startedAt time.Time) {
	eventID := entry.ID()

	if sub.Queued() {
		o.toPhase(key, PhaseQueued, sub.JobID, "")
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.pollJob(ctx, s, key, eventID, sub.JobID, startedAt)
		}()
		return
	}

	result := sub.Result
	if result == nil {
		o.failImport(s, key, eventID, errors.New("backend returned neither result nor job id"))
		return
	}

	key, eventID = o.maybePromote(s, key, eventID, result)

	if result.IngestDepth == models.DepthLapsFull {
		o.completeImport(s, key, eventID, entry.SourceID(), &models.ImportCounts{
			Races:   result.RacesIngested,
			Results: result.ResultsIngested,
			Laps:    result.LapsIngested,
		}, startedAt, "completed")
		return
	}

	// Partial depth or an in-progress marker: the status poller is
	// already watching, just record the queued phase.
	o.toPhase(key, PhaseQueued, "", "")
}

// recoverAfterNetworkFailure handles a submit connection failure without
// assuming the import failed: the backend may well have completed it. After
// a short delay the authoritative search endpoint is re-queried for the same
// source id and the outcome reconstructed from what it reports.
func (o *Orchestrator) recoverAfterNetworkFailure(ctx context.Context, s *reconcile.Session, key string, entry models.Entry, trackID string, startedAt time.Time, cause error) {
	eventID := entry.ID()
	sourceID := entry.SourceID()

	logging.Warn().Err(cause).Str("event_id", eventID).Msg("Import submit failed at network level, re-querying authoritative state")

	select {
	case <-time.After(o.cfg.RecoveryDelay):
	case <-ctx.Done():
		return
	}

	if sourceID == "" {
		o.failImport(s, key, eventID, cause)
		return
	}

	result, err := o.backend.SearchEvents(ctx, trackID, nil, nil)
	if err != nil {
		o.failImport(s, key, eventID, cause)
		return
	}

	for i := range result.Events {
		ev := result.Events[i]
		if ev.SourceEventID != sourceID {
			continue
		}

		key, eventID = o.maybePromote(s, key, eventID, &gateway.ImportResult{EventID: ev.ID, IngestDepth: ev.IngestDepth})

		if ev.IngestDepth == models.DepthLapsFull {
			// The original call succeeded; reconstruct the success.
			metrics.ImportsTotal.WithLabelValues("recovered").Inc()
			o.completeImport(s, key, eventID, sourceID, nil, startedAt, "")
			return
		}

		// Partial depth: the backend is mid-import. Keep polling.
		logging.Info().Str("event_id", eventID).Str("depth", ev.IngestDepth).Msg("Import recovered as in-flight")
		o.toPhase(key, PhaseQueued, "", "")
		return
	}

	// The event is genuinely absent; the original error stands.
	o.failImport(s, key, eventID, cause)
}

// pollStatus is the independent status poll loop for one import: every
// interval it re-reads the event's authoritative depth, refreshes the
// cosmetic stage label, and finishes the import when full depth appears.
// It self-terminates on an exhausted attempt, duration or error budget.
func (o *Orchestrator) pollStatus(ctx context.Context, s *reconcile.Session, key, eventID string, startedAt time.Time) {
	deadline := startedAt.Add(o.cfg.StatusPollMaxDuration)
	consecutiveErrs := 0
	currentID := eventID

	ticker := time.NewTicker(o.cfg.StatusPollInterval)
	defer ticker.Stop()

	for attemptN := 0; attemptN < o.cfg.StatusPollMaxAttempts; attemptN++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		if time.Now().After(deadline) {
			o.pollGaveUp(s, key, currentID, "maximum poll duration exceeded")
			return
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return
		}

		record, err := o.backend.GetEvent(ctx, currentID)
		if err != nil {
			var nf *apperr.NotFoundError
			if errors.As(err, &nf) && models.IsPseudoID(currentID) {
				// Not promoted into the local database yet; keep
				// waiting without burning the error budget.
				metrics.PollAttemptsTotal.WithLabelValues("status", "ok").Inc()
				continue
			}
			metrics.PollAttemptsTotal.WithLabelValues("status", "error").Inc()
			consecutiveErrs++
			if consecutiveErrs >= o.cfg.StatusPollMaxErrors {
				o.pollGaveUp(s, key, currentID, "too many consecutive poll errors")
				return
			}
			continue
		}
		metrics.PollAttemptsTotal.WithLabelValues("status", "ok").Inc()
		consecutiveErrs = 0
		o.toPhase(key, PhasePolling, "", "")

		if record.ID != "" && record.ID != currentID {
			s.PromoteIdentity(currentID, models.Event{
				ID:            record.ID,
				IngestDepth:   record.IngestDepth,
				SourceEventID: strings.TrimPrefix(currentID, models.PseudoIDPrefix),
			})
			newKey := rekeyAfterPromotion(o, s.ID, key, currentID, record.ID)
			key = newKey
			currentID = record.ID
		}

		if record.IngestDepth == models.DepthLapsFull {
			sourceID := ""
			if models.IsPseudoID(eventID) {
				sourceID = strings.TrimPrefix(eventID, models.PseudoIDPrefix)
			}
			o.completeImport(s, key, currentID, sourceID, nil, startedAt, "")
			return
		}

		if p, ok := s.Progress(currentID); ok {
			now := time.Now()
			p.Stage = stageForElapsed(p.Elapsed(now))
			p.UpdatedAt = now
			s.SetProgress(p)
			o.notify.publish(Notification{
				Type:      EventProgress,
				SessionID: s.ID,
				EventID:   currentID,
				Status:    models.StatusImporting,
				Stage:     p.Stage,
				Counts:    p.Counts,
			})
		}
	}

	o.pollGaveUp(s, key, currentID, "maximum poll attempts exceeded")
}

// pollJob polls a queued job handle until it reports a terminal state.
func (o *Orchestrator) pollJob(ctx context.Context, s *reconcile.Session, key, eventID, jobID string, startedAt time.Time) {
	ticker := time.NewTicker(o.cfg.JobPollInterval)
	defer ticker.Stop()

	for attemptN := 0; attemptN < o.cfg.JobPollMaxAttempts; attemptN++ {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		// The status poller may have already finished the import, or the
		// session may have been evicted. Either way, stop burning polls.
		o.mu.Lock()
		a, ok := o.attempts[key]
		done := !ok || a.Phase.Terminal()
		o.mu.Unlock()
		if done {
			return
		}

		if err := o.limiter.Wait(ctx); err != nil {
			return
		}

		job, err := o.backend.GetJob(ctx, jobID)
		if err != nil {
			metrics.PollAttemptsTotal.WithLabelValues("job", "error").Inc()
			continue
		}
		metrics.PollAttemptsTotal.WithLabelValues("job", "ok").Inc()

		switch job.Status {
		case gateway.JobCompleted:
			var counts *models.ImportCounts
			currentID := eventID
			if job.Result != nil {
				key, currentID = o.maybePromote(s, key, eventID, job.Result)
				counts = &models.ImportCounts{
					Races:   job.Result.RacesIngested,
					Results: job.Result.ResultsIngested,
					Laps:    job.Result.LapsIngested,
				}
			}
			sourceID := ""
			if models.IsPseudoID(eventID) {
				sourceID = strings.TrimPrefix(eventID, models.PseudoIDPrefix)
			}
			o.completeImport(s, key, currentID, sourceID, counts, startedAt, "")
			return
		case gateway.JobFailed:
			o.failImport(s, key, eventID, &apperr.JobFailedError{JobID: jobID, Message: job.ErrorMessage})
			return
		default:
			// queued or processing; keep waiting.
		}
	}

	o.pollGaveUp(s, key, eventID, "job polling budget exhausted")
}

// maybePromote merges an identity change reported by the backend: the
// provider pseudo-id row is replaced by the real database id, the poll
// handle rekeyed, and the attempt state moved. Returns the current key and
// event id after promotion.
func (o *Orchestrator) maybePromote(s *reconcile.Session, key, eventID string, result *gateway.ImportResult) (string, string) {
	if result.EventID == "" || result.EventID == eventID {
		return key, eventID
	}

	s.PromoteIdentity(eventID, models.Event{
		ID:            result.EventID,
		IngestDepth:   result.IngestDepth,
		SourceEventID: strings.TrimPrefix(eventID, models.PseudoIDPrefix),
	})
	newKey := rekeyAfterPromotion(o, s.ID, key, eventID, result.EventID)

	o.notify.publish(Notification{
		Type:      EventPromoted,
		SessionID: s.ID,
		EventID:   result.EventID,
		OldID:     eventID,
	})
	logging.Info().Str("old_id", eventID).Str("new_id", result.EventID).Msg("Import identity promoted")

	return newKey, result.EventID
}

// rekeyAfterPromotion moves the poll handle and attempt state to the
// promoted id's key.
func rekeyAfterPromotion(o *Orchestrator, sessionID, oldKey, oldID, newID string) string {
	newKey := pollKey(sessionID, newID)
	if newKey == oldKey {
		return oldKey
	}

	o.pollers.Rekey(oldKey, newKey)

	o.mu.Lock()
	if a, ok := o.attempts[oldKey]; ok {
		delete(o.attempts, oldKey)
		o.attempts[newKey] = a
	}
	o.mu.Unlock()

	return newKey
}

// completeImport finishes an import exactly once: the override is cleared,
// both identities recorded in the known-imported cache, the row's depth
// updated, and the progress record left lingering briefly so the final
// counts stay visible. A second completion signal for the same key is a
// no-op.
func (o *Orchestrator) completeImport(s *reconcile.Session, key, eventID, sourceID string, counts *models.ImportCounts, startedAt time.Time, outcome string) {
	o.mu.Lock()
	a, ok := o.attempts[key]
	if !ok || a.Phase == PhaseCompleted {
		o.mu.Unlock()
		return
	}
	if err := a.transition(PhaseCompleted, "", ""); err != nil {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.pollers.Stop(key)

	s.ClearOverride(eventID)
	s.ReplaceEntryDepth(eventID, models.DepthLapsFull)

	ids := []string{eventID}
	if sourceID != "" {
		ids = append(ids, models.PseudoID(sourceID))
	}
	if err := o.store.MarkImported(context.Background(), ids...); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Failed to record known-imported ids")
	}

	now := time.Now()
	if p, ok := s.Progress(eventID); ok {
		p.Stage = "Import complete"
		if counts != nil {
			p.Counts = counts
		}
		p.UpdatedAt = now
		s.SetProgress(p)
	}

	if outcome == "" {
		outcome = "completed"
	}
	metrics.ImportsTotal.WithLabelValues(outcome).Inc()
	metrics.ImportDuration.Observe(now.Sub(startedAt).Seconds())

	o.notify.publish(Notification{
		Type:      EventCompleted,
		SessionID: s.ID,
		EventID:   eventID,
		Status:    models.StatusImported,
		Counts:    counts,
	})
	logging.Info().Str("event_id", eventID).Dur("took", now.Sub(startedAt)).Msg("Import completed")

	// Leave the final counts visible briefly, then drop the record.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		select {
		case <-time.After(o.cfg.ProgressLinger):
		case <-o.baseCtx.Done():
		}
		s.DeleteProgress(eventID)
	}()
}

// failImport marks the attempt failed and surfaces the message on the row.
func (o *Orchestrator) failImport(s *reconcile.Session, key, eventID string, cause error) {
	o.mu.Lock()
	a, ok := o.attempts[key]
	if !ok || a.Phase.Terminal() {
		o.mu.Unlock()
		return
	}
	if err := a.transition(PhaseFailed, "", cause.Error()); err != nil {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.pollers.Stop(key)

	if isEmptyEntryList(cause) {
		// The provider has no entry list for this event yet. Expected
		// for events that have not run, not an anomaly.
		logging.Info().Str("event_id", eventID).Msg("Import found no entries for event")
	} else {
		logging.Error().Err(cause).Str("event_id", eventID).Msg("Import failed")
	}

	s.SetFailure(eventID, cause.Error())
	metrics.ImportsTotal.WithLabelValues("failed").Inc()

	o.notify.publish(Notification{
		Type:      EventFailed,
		SessionID: s.ID,
		EventID:   eventID,
		Status:    models.StatusFailed,
		Error:     cause.Error(),
	})
}

// pollGaveUp resolves an exhausted polling budget as a terminal timeout so
// the row cannot hang in "importing" forever.
func (o *Orchestrator) pollGaveUp(s *reconcile.Session, key, eventID, reason string) {
	o.mu.Lock()
	a, ok := o.attempts[key]
	if !ok || a.Phase.Terminal() {
		o.mu.Unlock()
		return
	}
	if err := a.transition(PhaseFailed, "", reason); err != nil {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	logging.Warn().Str("event_id", eventID).Str("reason", reason).Msg("Import polling gave up")

	s.SetFailure(eventID, (&apperr.PollTimeoutError{EventID: eventID, Reason: reason}).Error())
	metrics.ImportsTotal.WithLabelValues("timeout").Inc()

	o.notify.publish(Notification{
		Type:      EventFailed,
		SessionID: s.ID,
		EventID:   eventID,
		Status:    models.StatusFailed,
		Error:     reason,
	})
}

// toPhase applies a phase transition, tolerating redundant moves.
func (o *Orchestrator) toPhase(key string, phase Phase, jobID, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.attempts[key]
	if !ok {
		return
	}
	if a.Phase == phase {
		return
	}
	if err := a.transition(phase, jobID, reason); err != nil {
		logging.Debug().Str("key", key).Err(err).Msg("Ignoring redundant phase transition")
	}
}

// isTransient reports whether err is a connection-level failure worth the
// re-query-and-reconcile path.
func isTransient(err error) bool {
	var tn *apperr.TransientNetworkError
	return errors.As(err, &tn)
}

// isEmptyEntryList recognizes the provider's benign "entry list is empty"
// failure.
func isEmptyEntryList(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "entry list is empty") || strings.Contains(msg, "no entries")
}
