// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lexgate/lexgate/pkg/validation"
)

// =============================================================================
// Size Limits
// =============================================================================

const (
	// MaxSegmentBytes is the maximum size of a source or target text.
	// Evaluation works on segments, not documents; anything larger belongs
	// to the (external) upload pipeline. Checked in bytes, not runes, to
	// bound memory regardless of script.
	MaxSegmentBytes = 64 * 1024 // 64KB

	// MaxReasonBytes bounds reviewer free-text fields.
	MaxReasonBytes = 4 * 1024 // 4KB
)

// requestValidate is the validator instance for scorer request payloads.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("locale", validateLocale)
	_ = requestValidate.RegisterValidation("maxbytes_segment", validateSegmentBytes)
	_ = requestValidate.RegisterValidation("maxbytes_reason", validateReasonBytes)
}

func validateLocale(fl validator.FieldLevel) bool {
	return validation.ValidateLocale(fl.Field().String()) == nil
}

func validateSegmentBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxSegmentBytes
}

func validateReasonBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxReasonBytes
}

// =============================================================================
// Request / Response Payloads
// =============================================================================

// EvaluationRequest is the entry-point payload for one evaluation job.
// KBVersion is optional; when empty the newest knowledge base for the locale
// is used and the chosen version is stamped on the report.
type EvaluationRequest struct {
	SourceText string `json:"source_text" binding:"required"`
	TargetText string `json:"target_text" binding:"required"`
	Locale     string `json:"locale" binding:"required"`
	KBVersion  string `json:"kb_version,omitempty"`
}

// Validate applies the structural checks that go beyond gin's binding tags:
// locale shape, segment size bounds.
func (r *EvaluationRequest) Validate() error {
	if err := validation.ValidateLocale(r.Locale); err != nil {
		return err
	}
	if len(r.SourceText) > MaxSegmentBytes {
		return fmt.Errorf("source_text exceeds %d bytes", MaxSegmentBytes)
	}
	if len(r.TargetText) > MaxSegmentBytes {
		return fmt.Errorf("target_text exceeds %d bytes", MaxSegmentBytes)
	}
	return nil
}

// OverrideRequest is a reviewer correction applied to one finding of a job.
// NewSeverity is required for change_severity; NewMacroClass for reclassify.
type OverrideRequest struct {
	SegmentID     string         `json:"segment_id" binding:"required"`
	RuleID        string         `json:"rule_id" binding:"required"`
	Action        FeedbackAction `json:"action" binding:"required"`
	NewSeverity   Severity       `json:"new_severity,omitempty"`
	NewMacroClass MacroClass     `json:"new_macro_class,omitempty"`
	Reason        string         `json:"reason" binding:"required"`
	Actor         string         `json:"actor" binding:"required"`
}

// Validate cross-checks action-dependent fields.
func (r *OverrideRequest) Validate() error {
	if !r.Action.Valid() {
		return fmt.Errorf("unknown action %q", r.Action)
	}
	if err := validation.ValidateActor(r.Actor); err != nil {
		return err
	}
	if len(r.Reason) > MaxReasonBytes {
		return fmt.Errorf("reason exceeds %d bytes", MaxReasonBytes)
	}
	switch r.Action {
	case ActionChangeSeverity:
		if !r.NewSeverity.Valid() {
			return fmt.Errorf("change_severity requires a valid new_severity, got %q", r.NewSeverity)
		}
	case ActionReclassify:
		if !r.NewMacroClass.Valid() {
			return fmt.Errorf("reclassify requires a valid new_macro_class, got %q", r.NewMacroClass)
		}
	}
	return nil
}

// OverrideResponse returns the appended event together with the recomputed
// report snapshot.
type OverrideResponse struct {
	Event  FeedbackEvent `json:"event"`
	Report ScoreReport   `json:"report"`
}

// RuleSearchResult is one entry of the retrieval shortlist as exposed over
// the rules search endpoint.
type RuleSearchResult struct {
	RuleID   string  `json:"rule_id"`
	Score    float64 `json:"score"`
	Semantic float64 `json:"semantic_score"`
	Lexical  float64 `json:"lexical_score"`
	RuleText string  `json:"rule_text"`
}

// StatsResponse summarizes the system for dashboards.
type StatsResponse struct {
	Evaluations    int     `json:"evaluations"`
	KnowledgeBases int     `json:"knowledge_bases"`
	MeanScore      float64 `json:"mean_score"`
}
