// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/retrieval"
	"github.com/lexgate/lexgate/services/scorer/scoring"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// fixedRetriever returns a canned shortlist built from the rule set.
type fixedRetriever struct {
	ruleIDs  []string
	degraded bool
}

func (f *fixedRetriever) Search(_ context.Context, _ string, _ string, rules []datatypes.Rule) ([]retrieval.Candidate, error) {
	var out []retrieval.Candidate
	for _, id := range f.ruleIDs {
		for i := range rules {
			if rules[i].RuleID == id {
				out = append(out, retrieval.Candidate{Rule: &rules[i], Score: 0.9})
			}
		}
	}
	if f.degraded {
		return out, retrieval.ErrDegraded
	}
	return out, nil
}

// fixedJudge returns canned findings stamped with the real segment id.
type fixedJudge struct {
	ruleFindings    []datatypes.Finding
	qualityFindings []datatypes.Finding
	ruleErr         error
	ruleCalls       int
	qualityCalls    int
}

func (f *fixedJudge) EvaluateRules(_ context.Context, segmentID, _, _, _ string, _ []datatypes.Rule) ([]datatypes.Finding, error) {
	f.ruleCalls++
	if f.ruleErr != nil {
		return nil, f.ruleErr
	}
	out := make([]datatypes.Finding, len(f.ruleFindings))
	for i, finding := range f.ruleFindings {
		finding.SegmentID = segmentID
		out[i] = finding
	}
	return out, nil
}

func (f *fixedJudge) EvaluateQuality(_ context.Context, segmentID, _, _, _ string) ([]datatypes.Finding, error) {
	f.qualityCalls++
	out := make([]datatypes.Finding, len(f.qualityFindings))
	for i, finding := range f.qualityFindings {
		finding.SegmentID = segmentID
		out[i] = finding
	}
	return out, nil
}

func engineRules() []datatypes.Rule {
	return []datatypes.Rule{
		{
			RuleID:          "MQM-PUNC-001",
			MacroClass:      datatypes.MacroPunctuation,
			RuleText:        "Punctuation width must match the target locale convention.",
			DefaultSeverity: datatypes.SeverityMinor,
			DefaultWeight:   2,
		},
		{
			RuleID:          "MQM-TERM-002",
			MacroClass:      datatypes.MacroTerminology,
			RuleText:        "Approved glossary terms are mandatory.",
			DefaultSeverity: datatypes.SeverityMajor,
			DefaultWeight:   4,
		},
	}
}

func testKB(t *testing.T, rules []datatypes.Rule) *kb.Store {
	t.Helper()
	dir := t.TempDir()
	snapshot := datatypes.KnowledgeBase{
		KBVersion:     "20250101120000",
		RubricVersion: "2.0.0",
		Locale:        "zh-CN",
		Rules:         rules,
		RuleCount:     len(rules),
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kb_20250101120000_zh-CN.json"), data, 0644))

	store, err := kb.NewStore(dir)
	require.NoError(t, err)
	return store
}

func testEngine(t *testing.T, retriever Retriever, judger Judger, cfg Config) (*Engine, *storage.Store) {
	t.Helper()
	bank, err := checks.NewBank(checks.DefaultConfig())
	require.NoError(t, err)
	store, err := storage.NewStore(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := New(testKB(t, engineRules()), bank, retriever, judger, scoring.DefaultRubric(), store, nil, cfg)
	return eng, store
}

func evalRequest() datatypes.EvaluationRequest {
	return datatypes.EvaluationRequest{
		SourceText: "Hello!",
		TargetText: "你好!",
		Locale:     "zh-CN",
	}
}

func TestEvaluate_ValidatorOnly(t *testing.T) {
	// Judge returns nothing: the half-width exclamation mark is the only
	// finding, so score = 100 - (2 x 1).
	eng, store := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001"}}, &fixedJudge{}, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)

	assert.Equal(t, 98.0, report.FinalScore)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "MQM-PUNC-001", report.Findings[0].RuleID)
	assert.True(t, report.Findings[0].Deterministic)
	assert.Equal(t, "20250101120000", report.KBVersion)
	assert.Equal(t, "2.0.0", report.RubricVersion)
	assert.Equal(t, ModelPromptVersion, report.ModelPromptVersion)
	assert.Empty(t, report.Warnings)

	// Both snapshots are persisted.
	stored, err := store.GetReport(report.JobID)
	require.NoError(t, err)
	assert.Equal(t, report.FinalScore, stored.FinalScore)
	base, err := store.GetBaseReport(report.JobID)
	require.NoError(t, err)
	assert.Equal(t, report.FinalScore, base.FinalScore)
}

func TestEvaluate_JudgeFindingsMerged(t *testing.T) {
	judger := &fixedJudge{ruleFindings: []datatypes.Finding{{
		RuleID:        "MQM-TERM-002",
		MacroClass:    datatypes.MacroTerminology,
		Severity:      datatypes.SeverityMajor,
		Penalty:       8,
		Justification: "approved term missing",
	}}}
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001", "MQM-TERM-002"}}, judger, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)

	assert.Equal(t, 90.0, report.FinalScore) // 100 - 2 - 8
	assert.Len(t, report.Findings, 2)
	assert.Equal(t, 1, judger.ruleCalls)
	assert.Zero(t, judger.qualityCalls)
}

func TestEvaluate_DuplicateJudgeFindingDropped(t *testing.T) {
	// The judge re-reports the punctuation issue the validator already
	// caught; the deterministic finding wins.
	judger := &fixedJudge{ruleFindings: []datatypes.Finding{{
		RuleID:        "MQM-PUNC-001",
		MacroClass:    datatypes.MacroPunctuation,
		Severity:      datatypes.SeverityMajor,
		Penalty:       4,
		Justification: "model saw it too",
	}}}
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001"}}, judger, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)

	require.Len(t, report.Findings, 1)
	assert.True(t, report.Findings[0].Deterministic)
	assert.Equal(t, 98.0, report.FinalScore)
}

func TestEvaluate_DegradedRetrievalWarns(t *testing.T) {
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001"}, degraded: true}, &fixedJudge{}, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Contains(t, report.Warnings, "retrieval degraded to lexical-only ranking")
	assert.Equal(t, 98.0, report.FinalScore) // deterministic result unaffected
}

func TestEvaluate_JudgeFailureKeepsDeterministicFindings(t *testing.T) {
	judger := &fixedJudge{ruleErr: context.DeadlineExceeded}
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001"}}, judger, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Contains(t, report.Warnings, "rule judging unavailable")
	require.Len(t, report.Findings, 1)
	assert.True(t, report.Findings[0].Deterministic)
}

func TestEvaluate_QualityJudgeEnabled(t *testing.T) {
	judger := &fixedJudge{qualityFindings: []datatypes.Finding{{
		RuleID:        "QUALITY_MISTRANSLATION",
		MacroClass:    datatypes.MacroAccuracy,
		Severity:      datatypes.SeverityCritical,
		Penalty:       45,
		Justification: "meaning inverted",
	}}}
	eng, _ := testEngine(t, &fixedRetriever{}, judger, Config{EnableQualityJudge: true})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, judger.qualityCalls)

	var ids []string
	for _, f := range report.Findings {
		ids = append(ids, f.RuleID)
	}
	assert.Contains(t, ids, "QUALITY_MISTRANSLATION")
	assert.Equal(t, 53.0, report.FinalScore) // 100 - 2 - 45
}

func TestEvaluate_DanglingRuleReferenceDropped(t *testing.T) {
	judger := &fixedJudge{ruleFindings: []datatypes.Finding{{
		RuleID:        "MQM-GONE-404",
		MacroClass:    datatypes.MacroAccuracy,
		Severity:      datatypes.SeverityMajor,
		Penalty:       10,
		Justification: "cites a rule not in the KB",
	}}}
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001"}}, judger, Config{})

	report, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	for _, f := range report.Findings {
		assert.NotEqual(t, "MQM-GONE-404", f.RuleID)
	}
	assert.Equal(t, 98.0, report.FinalScore)
}

func TestEvaluate_UnknownKB(t *testing.T) {
	eng, _ := testEngine(t, &fixedRetriever{}, &fixedJudge{}, Config{})

	req := evalRequest()
	req.KBVersion = "20990101000000"
	_, err := eng.Evaluate(context.Background(), req)
	assert.ErrorIs(t, err, kb.ErrNotFound)
}

func TestEvaluate_InvalidRequest(t *testing.T) {
	eng, _ := testEngine(t, &fixedRetriever{}, &fixedJudge{}, Config{})

	req := evalRequest()
	req.Locale = "Chinese (Simplified)"
	_, err := eng.Evaluate(context.Background(), req)
	assert.Error(t, err)
}

func TestEvaluate_RepeatRunsIdenticalExceptStamps(t *testing.T) {
	judger := &fixedJudge{ruleFindings: []datatypes.Finding{{
		RuleID:        "MQM-TERM-002",
		MacroClass:    datatypes.MacroTerminology,
		Severity:      datatypes.SeverityMajor,
		Penalty:       8,
		Justification: "approved term missing",
	}}}
	eng, _ := testEngine(t, &fixedRetriever{ruleIDs: []string{"MQM-PUNC-001", "MQM-TERM-002"}}, judger, Config{})

	first, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)
	second, err := eng.Evaluate(context.Background(), evalRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.JobID, second.JobID)

	// Neutralize the two per-run stamps; everything else must be
	// byte-identical.
	second.JobID = first.JobID
	second.CreatedAt = first.CreatedAt
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestSegmentID_Deterministic(t *testing.T) {
	assert.Equal(t, SegmentID("你好!"), SegmentID("你好!"))
	assert.NotEqual(t, SegmentID("a"), SegmentID("b"))
}
