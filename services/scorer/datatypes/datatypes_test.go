// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMacroClassValid(t *testing.T) {
	for _, class := range MacroClasses {
		assert.True(t, class.Valid(), "macro class %q should be valid", class)
	}
	assert.False(t, MacroClass("Fluency").Valid())
	assert.False(t, MacroClass("").Valid())
}

func TestSeverityValid(t *testing.T) {
	assert.True(t, SeverityMinor.Valid())
	assert.True(t, SeverityMajor.Valid())
	assert.True(t, SeverityCritical.Valid())
	assert.False(t, Severity("Blocker").Valid())
}

func TestFindingSpanValid(t *testing.T) {
	tests := []struct {
		name      string
		start     *int
		end       *int
		targetLen int
		want      bool
	}{
		{"no span", nil, nil, 10, true},
		{"well formed", intPtr(0), intPtr(5), 10, true},
		{"zero width", intPtr(3), intPtr(3), 10, true},
		{"end past target", intPtr(0), intPtr(11), 10, false},
		{"inverted", intPtr(5), intPtr(3), 10, false},
		{"negative start", intPtr(-1), intPtr(3), 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Finding{SpanStart: tt.start, SpanEnd: tt.end}
			assert.Equal(t, tt.want, f.SpanValid(tt.targetLen))
		})
	}

	half := Finding{SpanStart: intPtr(2)}
	assert.False(t, half.SpanValid(10), "a lone start offset is malformed")
}

func TestFindingOverlaps(t *testing.T) {
	spanned := func(start, end int) Finding {
		return Finding{SpanStart: &start, SpanEnd: &end}
	}
	unspanned := Finding{}

	a, b := spanned(0, 5), spanned(3, 8)
	assert.True(t, a.Overlaps(&b))

	c := spanned(5, 8)
	assert.False(t, a.Overlaps(&c), "touching spans do not overlap")

	assert.True(t, unspanned.Overlaps(&a), "span-less findings overlap everything")
	assert.True(t, a.Overlaps(&unspanned))
}

func TestEvaluationRequestValidate(t *testing.T) {
	valid := EvaluationRequest{
		SourceText: "hello",
		TargetText: "你好",
		Locale:     "zh-CN",
	}
	assert.NoError(t, valid.Validate())

	badLocale := valid
	badLocale.Locale = "not a locale!"
	assert.Error(t, badLocale.Validate())

	oversize := valid
	oversize.TargetText = strings.Repeat("x", MaxSegmentBytes+1)
	assert.Error(t, oversize.Validate())
}

func TestOverrideRequestValidate(t *testing.T) {
	base := OverrideRequest{
		SegmentID: "seg_1a2b3c4d",
		RuleID:    "MQM-TERM-002",
		Action:    ActionDismiss,
		Reason:    "false positive",
		Actor:     "reviewer@example.com",
	}
	assert.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*OverrideRequest)
	}{
		{"unknown action", func(r *OverrideRequest) { r.Action = "undo" }},
		{"empty actor", func(r *OverrideRequest) { r.Actor = "" }},
		{"severity change without severity", func(r *OverrideRequest) {
			r.Action = ActionChangeSeverity
		}},
		{"reclassify without class", func(r *OverrideRequest) {
			r.Action = ActionReclassify
		}},
		{"oversize reason", func(r *OverrideRequest) {
			r.Reason = strings.Repeat("x", MaxReasonBytes+1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}

	withSeverity := base
	withSeverity.Action = ActionChangeSeverity
	withSeverity.NewSeverity = SeverityMinor
	assert.NoError(t, withSeverity.Validate())
}

func intPtr(v int) *int { return &v }
