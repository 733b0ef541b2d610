// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"
)

// FeedbackAction enumerates the reviewer corrections the ledger accepts.
type FeedbackAction string

const (
	ActionAccept         FeedbackAction = "accept"
	ActionDismiss        FeedbackAction = "dismiss"
	ActionChangeSeverity FeedbackAction = "change_severity"
	ActionReclassify     FeedbackAction = "reclassify"
)

// Valid reports whether a is a known feedback action.
func (a FeedbackAction) Valid() bool {
	switch a {
	case ActionAccept, ActionDismiss, ActionChangeSeverity, ActionReclassify:
		return true
	}
	return false
}

// FeedbackEvent is one append-only audit record of a reviewer correction.
//
// Events are never deleted or mutated. The ordered event list for a
// (segment_id, rule_id) pair is the only source of truth for the "current"
// state of a finding beyond its original detection.
type FeedbackEvent struct {
	EventID   string         `json:"event_id"`
	JobID     string         `json:"job_id"`
	SegmentID string         `json:"segment_id"`
	RuleID    string         `json:"rule_id"`
	Action    FeedbackAction `json:"action"`
	OldValue  string         `json:"old_value"`
	NewValue  string         `json:"new_value"`
	Reason    string         `json:"reason"`
	Actor     string         `json:"actor"`
	CreatedAt time.Time      `json:"created_at"`
}

// ReviewState is the derived per-finding state after folding the ledger.
type ReviewState string

const (
	ReviewPending         ReviewState = "Pending"
	ReviewAccepted        ReviewState = "Accepted"
	ReviewDismissed       ReviewState = "Dismissed"
	ReviewSeverityChanged ReviewState = "SeverityChanged"
	ReviewReclassified    ReviewState = "Reclassified"
)
