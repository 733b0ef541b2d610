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

// QualityBand is the informational quality label derived from the final
// score. It is display-only and never feeds back into computation.
type QualityBand string

const (
	BandExcellent     QualityBand = "Excellent"
	BandGood          QualityBand = "Good"
	BandFair          QualityBand = "Fair"
	BandNeedsRevision QualityBand = "Needs Revision"
)

// ScoreBreakdown is the per-macro-class slice of a report. Penalty holds the
// raw (pre-cap) sum for transparency; the category cap only adjusts the
// report total.
type ScoreBreakdown struct {
	Penalty        float64  `json:"penalty"`
	Count          int      `json:"count"`
	RulesTriggered []string `json:"rules_triggered"`
}

// ScoreReport is the complete, self-describing result of one evaluation job.
//
// A report is an immutable snapshot. Reviewer overrides produce a new
// snapshot via recomputation; KBVersion, RubricVersion and
// ModelPromptVersion are preserved unchanged across overrides because only
// human judgment changed, not policy.
//
// Findings preserves detection order. Warnings carries non-fatal degradation
// notices (lexical-only retrieval, judge failure) so a partial result stays
// explainable.
type ScoreReport struct {
	JobID              string                        `json:"job_id"`
	KBVersion          string                        `json:"kb_version"`
	RubricVersion      string                        `json:"rubric_version"`
	ModelPromptVersion string                        `json:"model_prompt_version"`
	FinalScore         float64                       `json:"final_score"`
	Band               QualityBand                   `json:"band"`
	Findings           []Finding                     `json:"findings"`
	ByMacro            map[MacroClass]ScoreBreakdown `json:"by_macro"`
	Warnings           []string                      `json:"warnings,omitempty"`
	SourceText         string                        `json:"source_text"`
	TargetText         string                        `json:"target_text"`
	Locale             string                        `json:"locale"`
	CreatedAt          time.Time                     `json:"created_at"`
}

// ReportSummary is the listing projection of a report: enough to render an
// index without shipping full texts and findings.
type ReportSummary struct {
	JobID      string      `json:"job_id"`
	KBVersion  string      `json:"kb_version"`
	Locale     string      `json:"locale"`
	FinalScore float64     `json:"final_score"`
	Band       QualityBand `json:"band"`
	Findings   int         `json:"findings"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Summary projects the report for listings.
func (r *ScoreReport) Summary() ReportSummary {
	return ReportSummary{
		JobID:      r.JobID,
		KBVersion:  r.KBVersion,
		Locale:     r.Locale,
		FinalScore: r.FinalScore,
		Band:       r.Band,
		Findings:   len(r.Findings),
		CreatedAt:  r.CreatedAt,
	}
}
