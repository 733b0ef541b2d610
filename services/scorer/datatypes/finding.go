// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Finding records one detected violation of a rule against a translation
// segment.
//
// A Finding is logically immutable once created. Reviewer corrections are
// never applied in place; they are appended to the review ledger and folded
// into an effective view at read time, which preserves the audit history.
//
// SpanStart/SpanEnd, when present, index into the target text with the
// invariant SpanStart <= SpanEnd <= len(target). Spans are byte offsets in
// the UTF-8 encoded target, matching what the judge returns.
type Finding struct {
	SegmentID     string     `json:"segment_id"`
	RuleID        string     `json:"rule_id"`
	MacroClass    MacroClass `json:"macro_class"`
	Severity      Severity   `json:"severity"`
	Penalty       float64    `json:"penalty"`
	Justification string     `json:"justification"`
	Citation      Citation   `json:"citation"`
	Deterministic bool       `json:"deterministic"`
	SpanStart     *int       `json:"span_start,omitempty"`
	SpanEnd       *int       `json:"span_end,omitempty"`
	Highlighted   string     `json:"highlighted_text,omitempty"`
}

// HasSpan reports whether the finding carries a character span.
func (f *Finding) HasSpan() bool {
	return f.SpanStart != nil && f.SpanEnd != nil
}

// SpanValid reports whether the span, if present, is well formed for a
// target text of the given length. Findings without spans are always valid.
func (f *Finding) SpanValid(targetLen int) bool {
	if !f.HasSpan() {
		return f.SpanStart == nil && f.SpanEnd == nil
	}
	return *f.SpanStart >= 0 && *f.SpanStart <= *f.SpanEnd && *f.SpanEnd <= targetLen
}

// Overlaps reports whether two findings touch overlapping regions of the
// target text. Findings without spans overlap everything for the same rule;
// the aggregator uses this to collapse an LLM duplicate of a deterministic
// whole-segment check.
func (f *Finding) Overlaps(other *Finding) bool {
	if !f.HasSpan() || !other.HasSpan() {
		return true
	}
	return *f.SpanStart < *other.SpanEnd && *other.SpanStart < *f.SpanEnd
}

// SpanOf is a convenience constructor for span pointers.
func SpanOf(start, end int) (*int, *int) {
	return &start, &end
}
