// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/retrieval"
	"github.com/lexgate/lexgate/services/scorer/review"
	"github.com/lexgate/lexgate/services/scorer/scoring"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// stubRetriever surfaces every rule with a fixed blended score.
type stubRetriever struct{}

func (stubRetriever) Search(_ context.Context, _ string, _ string, rules []datatypes.Rule) ([]retrieval.Candidate, error) {
	out := make([]retrieval.Candidate, len(rules))
	for i := range rules {
		out[i] = retrieval.Candidate{Rule: &rules[i], Score: 0.8, SemanticScore: 0.9, LexicalScore: 0.5}
	}
	return out, nil
}

// stubJudge emits one Major terminology finding per job.
type stubJudge struct{}

func (stubJudge) EvaluateRules(_ context.Context, segmentID, _, _, _ string, candidates []datatypes.Rule) ([]datatypes.Finding, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	return []datatypes.Finding{{
		SegmentID:     segmentID,
		RuleID:        "MQM-TERM-002",
		MacroClass:    datatypes.MacroTerminology,
		Severity:      datatypes.SeverityMajor,
		Justification: "approved term not used",
	}}, nil
}

func (stubJudge) EvaluateQuality(_ context.Context, _, _, _, _ string) ([]datatypes.Finding, error) {
	return nil, nil
}

func handlerRules() []datatypes.Rule {
	return []datatypes.Rule{
		{
			RuleID:          "MQM-TERM-002",
			MacroClass:      datatypes.MacroTerminology,
			RuleText:        "Approved glossary terms are mandatory.",
			DefaultSeverity: datatypes.SeverityMajor,
			DefaultWeight:   4,
		},
		{
			RuleID:          "MQM-STYLE-003",
			MacroClass:      datatypes.MacroStyle,
			RuleText:        "Prefer formal register in contractual clauses.",
			DefaultSeverity: datatypes.SeverityMinor,
			DefaultWeight:   1,
		},
	}
}

type testEnv struct {
	router *gin.Engine
	store  *storage.Store
	ledger *review.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	snapshot := datatypes.KnowledgeBase{
		KBVersion:     "20250101120000",
		RubricVersion: "2.0.0",
		Locale:        "zh-CN",
		Rules:         handlerRules(),
		RuleCount:     2,
		CreatedAt:     time.Now().UTC(),
	}
	data, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kb_20250101120000_zh-CN.json"), data, 0644))

	kbStore, err := kb.NewStore(dir)
	require.NoError(t, err)

	store, err := storage.NewStore(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bank, err := checks.NewBank(checks.DefaultConfig())
	require.NoError(t, err)

	rubric := scoring.DefaultRubric()
	retr := stubRetriever{}
	eng := engine.New(kbStore, bank, retr, stubJudge{}, rubric, store, nil, engine.Config{})
	ledger := review.NewLedger(store, rubric)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/evaluations", Evaluate(eng))
	v1.GET("/evaluations", ListEvaluations(store))
	v1.GET("/evaluations/:jobID", GetEvaluation(store))
	v1.GET("/evaluations/:jobID/findings", GetFindings(ledger))
	v1.POST("/evaluations/:jobID/overrides", Override(ledger, nil))
	v1.GET("/evaluations/:jobID/events", GetEvents(ledger))
	v1.GET("/rules/search", SearchRules(kbStore, retr))
	v1.GET("/rules/:ruleID", GetRule(kbStore))
	v1.GET("/kb", ListKB(kbStore))
	v1.GET("/stats", Stats(store, kbStore))
	router.GET("/health", HealthCheck(store, kbStore))

	return &testEnv{router: router, store: store, ledger: ledger}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) evaluate(t *testing.T) datatypes.ScoreReport {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/evaluations", datatypes.EvaluationRequest{
		SourceText: "The party shall deliver the goods.",
		TargetText: "当事人应当交付货物。",
		Locale:     "zh-CN",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report datatypes.ScoreReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func TestEvaluateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	report := env.evaluate(t)

	assert.NotEmpty(t, report.JobID)
	assert.Equal(t, "20250101120000", report.KBVersion)
	// One Major terminology finding against weight 4 and multiplier 2.
	assert.InDelta(t, 92.0, report.FinalScore, 0.001)
	assert.Len(t, report.Findings, 1)
}

func TestEvaluateRejectsBadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing target", datatypes.EvaluationRequest{SourceText: "a", Locale: "zh-CN"}},
		{"bad locale", datatypes.EvaluationRequest{SourceText: "a", TargetText: "b", Locale: "zh_CN!"}},
		{"not json", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/evaluations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetEvaluationRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	report := env.evaluate(t)

	rec := env.do(t, http.MethodGet, "/v1/evaluations/"+report.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got datatypes.ScoreReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, report.JobID, got.JobID)
	assert.Equal(t, report.FinalScore, got.FinalScore)

	rec = env.do(t, http.MethodGet, "/v1/evaluations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEvaluations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"evaluations":[],"count":0}`, rec.Body.String())

	env.evaluate(t)
	env.evaluate(t)

	rec = env.do(t, http.MethodGet, "/v1/evaluations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestOverrideFlow(t *testing.T) {
	env := newTestEnv(t)
	report := env.evaluate(t)
	finding := report.Findings[0]

	rec := env.do(t, http.MethodPost, "/v1/evaluations/"+report.JobID+"/overrides", datatypes.OverrideRequest{
		SegmentID:   finding.SegmentID,
		RuleID:      finding.RuleID,
		Action:      datatypes.ActionChangeSeverity,
		NewSeverity: datatypes.SeverityMinor,
		Reason:      "context makes this a minor slip",
		Actor:       "reviewer@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp datatypes.OverrideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ActionChangeSeverity, resp.Event.Action)
	// Major (weight 4 x 2) downgraded to Minor (weight 4 x 1).
	assert.InDelta(t, 96.0, resp.Report.FinalScore, 0.001)

	rec = env.do(t, http.MethodGet, "/v1/evaluations/"+report.JobID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events struct {
		Events []datatypes.FeedbackEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events.Events, 1)
	assert.Equal(t, string(datatypes.SeverityMajor), events.Events[0].OldValue)

	rec = env.do(t, http.MethodGet, "/v1/evaluations/"+report.JobID+"/findings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var findings struct {
		Findings []review.EffectiveFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &findings))
	require.Len(t, findings.Findings, 1)
	assert.Equal(t, datatypes.SeverityMinor, findings.Findings[0].Severity)
}

func TestOverrideErrors(t *testing.T) {
	env := newTestEnv(t)
	report := env.evaluate(t)

	valid := datatypes.OverrideRequest{
		SegmentID: report.Findings[0].SegmentID,
		RuleID:    report.Findings[0].RuleID,
		Action:    datatypes.ActionDismiss,
		Reason:    "false positive",
		Actor:     "reviewer@example.com",
	}

	rec := env.do(t, http.MethodPost, "/v1/evaluations/unknown-job/overrides", valid)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	missing := valid
	missing.RuleID = "MQM-NOPE-999"
	rec = env.do(t, http.MethodPost, "/v1/evaluations/"+report.JobID+"/overrides", missing)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bad := valid
	bad.Action = datatypes.ActionChangeSeverity
	bad.NewSeverity = ""
	rec = env.do(t, http.MethodPost, "/v1/evaluations/"+report.JobID+"/overrides", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchRules(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rules/search?q=glossary&locale=zh-CN", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		KBVersion string                       `json:"kb_version"`
		Results   []datatypes.RuleSearchResult `json:"results"`
		Degraded  bool                         `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "20250101120000", resp.KBVersion)
	assert.Len(t, resp.Results, 2)
	assert.False(t, resp.Degraded)

	rec = env.do(t, http.MethodGet, "/v1/rules/search?q=glossary&locale=zh-CN&top_k=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 1)

	rec = env.do(t, http.MethodGet, "/v1/rules/search?locale=zh-CN", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/rules/search?q=x&locale=zh-CN&kb_version=19990101000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRuleEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rules/MQM-TERM-002?kb_version=20250101120000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rule datatypes.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rule))
	assert.Equal(t, datatypes.MacroTerminology, rule.MacroClass)

	rec = env.do(t, http.MethodGet, "/v1/rules/MQM-TERM-002", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/rules/MQM-NOPE-999?kb_version=20250101120000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListKBAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.evaluate(t)

	rec := env.do(t, http.MethodGet, "/v1/kb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var kbResp struct {
		KnowledgeBases []datatypes.KnowledgeBase `json:"knowledge_bases"`
		Count          int                       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kbResp))
	require.Equal(t, 1, kbResp.Count)
	assert.Equal(t, "20250101120000", kbResp.KnowledgeBases[0].KBVersion)
	assert.Empty(t, kbResp.KnowledgeBases[0].Rules)

	rec = env.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats datatypes.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Evaluations)
	assert.Equal(t, 1, stats.KnowledgeBases)
	assert.InDelta(t, 92.0, stats.MeanScore, 0.001)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}
