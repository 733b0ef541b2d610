// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package review implements the append-only human-override ledger.
//
// Reviewer corrections never mutate a job's base findings. Each
// correction appends a FeedbackEvent; the current state of every finding
// is re-derived by folding the ordered event list over the immutable
// base, then re-scoring. Folding is pure, so replaying the same ledger
// always reproduces the same report.
package review

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/scoring"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// ErrTargetNotFound is returned when an override references a
// segment/rule pair with no finding in the job. The ledger is not
// mutated in that case.
var ErrTargetNotFound = errors.New("override target not found in job")

// EffectiveFinding is one base finding with its folded review state.
type EffectiveFinding struct {
	datatypes.Finding
	State datatypes.ReviewState `json:"state"`
}

// =============================================================================
// Fold
// =============================================================================

// Fold derives the effective finding set from base findings and the
// ordered event list.
//
// # Description
//
// Events are applied in ledger order to every base finding sharing the
// event's (segment_id, rule_id) pair. dismiss excludes the finding from
// scoring, accept confirms it unchanged, change_severity replaces the
// severity and recomputes the penalty from the finding's base weight,
// reclassify moves the finding to another macro class. Later events on
// the same pair supersede earlier ones.
//
// Pure function: callers may fold the same inputs any number of times
// and get identical output.
func Fold(base []datatypes.Finding, events []datatypes.FeedbackEvent, rubric scoring.RubricConfig) []EffectiveFinding {
	effective := make([]EffectiveFinding, len(base))
	for i, f := range base {
		effective[i] = EffectiveFinding{Finding: f, State: datatypes.ReviewPending}
	}

	for _, event := range events {
		for i := range effective {
			if effective[i].SegmentID != event.SegmentID || effective[i].RuleID != event.RuleID {
				continue
			}
			switch event.Action {
			case datatypes.ActionDismiss:
				effective[i].State = datatypes.ReviewDismissed
			case datatypes.ActionAccept:
				effective[i].State = datatypes.ReviewAccepted
			case datatypes.ActionChangeSeverity:
				newSev := datatypes.Severity(event.NewValue)
				if !newSev.Valid() {
					continue
				}
				effective[i].Penalty = baseWeight(base[i], rubric) * rubric.SeverityMultipliers[newSev]
				effective[i].Severity = newSev
				effective[i].State = datatypes.ReviewSeverityChanged
			case datatypes.ActionReclassify:
				newMacro := datatypes.MacroClass(event.NewValue)
				if !newMacro.Valid() {
					continue
				}
				effective[i].MacroClass = newMacro
				effective[i].State = datatypes.ReviewReclassified
			}
		}
	}
	return effective
}

// baseWeight recovers the rule weight a finding was detected with. The
// base finding's penalty is weight x multiplier(base severity), so the
// weight divides back out; a zero-penalty finding falls back to the
// rubric's macro weight.
func baseWeight(f datatypes.Finding, rubric scoring.RubricConfig) float64 {
	mult := rubric.SeverityMultipliers[f.Severity]
	if f.Penalty > 0 && mult > 0 {
		return f.Penalty / mult
	}
	return rubric.MacroWeights[f.MacroClass]
}

// Scorable filters out dismissed findings, returning the set the Scoring
// Engine should see.
func Scorable(effective []EffectiveFinding) []datatypes.Finding {
	out := make([]datatypes.Finding, 0, len(effective))
	for _, ef := range effective {
		if ef.State == datatypes.ReviewDismissed {
			continue
		}
		out = append(out, ef.Finding)
	}
	return out
}

// =============================================================================
// Ledger
// =============================================================================

// Ledger serializes overrides per job and persists events and recomputed
// snapshots.
//
// # Thread Safety
//
// Overrides on the same job are single-writer: concurrent reviewers on
// one job queue behind its mutex so no correction is lost. Different
// jobs never contend. Reads go straight to storage, lock-free.
type Ledger struct {
	store  *storage.Store
	rubric scoring.RubricConfig

	mu       sync.Mutex
	jobLocks map[string]*sync.Mutex
}

// NewLedger creates a Ledger over the job store.
func NewLedger(store *storage.Store, rubric scoring.RubricConfig) *Ledger {
	return &Ledger{
		store:    store,
		rubric:   rubric,
		jobLocks: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) jobLock(jobID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.jobLocks[jobID]
	if !ok {
		lock = &sync.Mutex{}
		l.jobLocks[jobID] = lock
	}
	return lock
}

// Apply validates and appends one reviewer correction, then recomputes
// the job's report snapshot from the base findings plus the full ledger.
//
// # Outputs
//   - *datatypes.OverrideResponse: the appended event and new snapshot.
//   - error: storage.ErrNotFound for an unknown job, ErrTargetNotFound
//     when no finding matches the segment/rule pair, or a request
//     validation failure. The ledger is untouched on any error.
func (l *Ledger) Apply(jobID string, req datatypes.OverrideRequest) (*datatypes.OverrideResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lock := l.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	base, err := l.store.GetBaseReport(jobID)
	if err != nil {
		return nil, err
	}

	events, err := l.store.ListEvents(jobID)
	if err != nil {
		return nil, err
	}

	// The event must target a finding that exists in the base set.
	current := Fold(base.Findings, events, l.rubric)
	target := findTarget(current, req.SegmentID, req.RuleID)
	if target == nil {
		return nil, fmt.Errorf("%w: segment %s rule %s", ErrTargetNotFound, req.SegmentID, req.RuleID)
	}

	event := datatypes.FeedbackEvent{
		EventID:   uuid.NewString(),
		JobID:     jobID,
		SegmentID: req.SegmentID,
		RuleID:    req.RuleID,
		Action:    req.Action,
		Reason:    req.Reason,
		Actor:     req.Actor,
		CreatedAt: time.Now().UTC(),
	}
	switch req.Action {
	case datatypes.ActionChangeSeverity:
		event.OldValue = string(target.Severity)
		event.NewValue = string(req.NewSeverity)
	case datatypes.ActionReclassify:
		event.OldValue = string(target.MacroClass)
		event.NewValue = string(req.NewMacroClass)
	default:
		event.OldValue = string(target.State)
	}

	if err := l.store.AppendEvent(&event); err != nil {
		return nil, fmt.Errorf("append feedback event: %w", err)
	}

	report, err := l.recompute(base, append(events, event))
	if err != nil {
		return nil, err
	}
	return &datatypes.OverrideResponse{Event: event, Report: *report}, nil
}

// Recompute re-derives the current snapshot from storage. Used after
// Apply internally and exposed for audit tooling that replays ledgers.
func (l *Ledger) Recompute(jobID string) (*datatypes.ScoreReport, error) {
	lock := l.jobLock(jobID)
	lock.Lock()
	defer lock.Unlock()

	base, err := l.store.GetBaseReport(jobID)
	if err != nil {
		return nil, err
	}
	events, err := l.store.ListEvents(jobID)
	if err != nil {
		return nil, err
	}
	return l.recompute(base, events)
}

// recompute folds, scores, and persists the new snapshot. Version stamps
// and creation time carry over unchanged: only human judgment moved, not
// policy.
func (l *Ledger) recompute(base *datatypes.ScoreReport, events []datatypes.FeedbackEvent) (*datatypes.ScoreReport, error) {
	effective := Fold(base.Findings, events, l.rubric)
	result := scoring.Score(Scorable(effective), l.rubric)

	report := *base
	report.FinalScore = result.FinalScore
	report.Band = result.Band
	report.Findings = result.Findings
	report.ByMacro = result.ByMacro

	if err := l.store.SaveReport(&report); err != nil {
		return nil, fmt.Errorf("save recomputed report: %w", err)
	}
	return &report, nil
}

// Events returns a job's full audit trail in append order.
func (l *Ledger) Events(jobID string) ([]datatypes.FeedbackEvent, error) {
	return l.store.ListEvents(jobID)
}

// EffectiveFindings returns the folded finding states for display.
func (l *Ledger) EffectiveFindings(jobID string) ([]EffectiveFinding, error) {
	base, err := l.store.GetBaseReport(jobID)
	if err != nil {
		return nil, err
	}
	events, err := l.store.ListEvents(jobID)
	if err != nil {
		return nil, err
	}
	return Fold(base.Findings, events, l.rubric), nil
}

func findTarget(effective []EffectiveFinding, segmentID, ruleID string) *EffectiveFinding {
	for i := range effective {
		if effective[i].SegmentID == segmentID && effective[i].RuleID == ruleID {
			return &effective[i]
		}
	}
	return nil
}
