// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

package ingest

import "fmt"

// Phase is the state of one import attempt. The phases form a small state
// machine:
//
//	idle -> submitting -> { completed
//	                      | queued -> polling -> { completed | failed }
//	                      | polling -> { completed | failed }
//	                      | failed }
//
// All transitions go through transition() so illegal moves are caught in one
// place instead of leaking as inconsistent flag combinations.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseQueued     Phase = "queued"
	PhasePolling    Phase = "polling"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Active reports whether an import cycle is running.
func (p Phase) Active() bool {
	return p == PhaseSubmitting || p == PhaseQueued || p == PhasePolling
}

// attempt is the tagged state of one import attempt. JobID is set only in
// the queued phase; Reason only in the failed phase.
type attempt struct {
	Phase  Phase
	JobID  string
	Reason string
}

// legal enumerates the allowed phase transitions.
var legal = map[Phase][]Phase{
	PhaseIdle:       {PhaseSubmitting},
	PhaseSubmitting: {PhaseQueued, PhasePolling, PhaseCompleted, PhaseFailed},
	PhaseQueued:     {PhasePolling, PhaseCompleted, PhaseFailed},
	PhasePolling:    {PhaseCompleted, PhaseFailed},
	PhaseCompleted:  {},
	PhaseFailed:     {PhaseSubmitting}, // retry
}

// transition moves the attempt to a new phase, clearing phase-specific
// fields that no longer apply. Returns an error for an illegal move;
// transitioning into a terminal phase twice is reported so callers can treat
// duplicate completion signals as no-ops.
func (a *attempt) transition(to Phase, jobID, reason string) error {
	if a.Phase == to {
		return fmt.Errorf("already in phase %s", to)
	}
	allowed := false
	for _, p := range legal[a.Phase] {
		if p == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("illegal import transition %s -> %s", a.Phase, to)
	}

	a.Phase = to
	a.JobID = ""
	a.Reason = ""
	switch to {
	case PhaseQueued:
		a.JobID = jobID
	case PhaseFailed:
		a.Reason = reason
	}
	return nil
}
