// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine orchestrates one evaluation job end to end: validator
// bank and hybrid retrieval in parallel, judging over the retrieved
// shortlist, aggregation, scoring, and persistence.
//
// A job degrades rather than fails: embedding loss falls back to lexical
// retrieval, judge failures leave deterministic findings standing, and
// every degradation lands in the report's Warnings. Only malformed input
// and a missing knowledge base abort a job.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/judge"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/observability"
	"github.com/lexgate/lexgate/services/scorer/retrieval"
	"github.com/lexgate/lexgate/services/scorer/scoring"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// ModelPromptVersion stamps reports with the judge prompt revision so
// that stored scores remain comparable across prompt changes.
const ModelPromptVersion = "1.0.0"

// Retriever is the shortlist provider. Satisfied by *retrieval.Retriever
// and by fixed-output stubs in tests.
type Retriever interface {
	Search(ctx context.Context, queryText, locale string, rules []datatypes.Rule) ([]retrieval.Candidate, error)
}

// Judger is the external judging adapter boundary.
type Judger interface {
	EvaluateRules(ctx context.Context, segmentID, sourceText, targetText, locale string, candidates []datatypes.Rule) ([]datatypes.Finding, error)
	EvaluateQuality(ctx context.Context, segmentID, sourceText, targetText, locale string) ([]datatypes.Finding, error)
}

// Config tunes the engine.
type Config struct {
	// EnableQualityJudge turns on the general quality assessment pass.
	EnableQualityJudge bool
}

// Engine wires the evaluation pipeline together.
//
// # Thread Safety
//
// Evaluate may be called concurrently; jobs share only the read-only
// knowledge base and the store, both safe for concurrent use.
type Engine struct {
	kb        *kb.Store
	bank      *checks.Bank
	retriever Retriever
	judge     Judger
	rubric    scoring.RubricConfig
	store     *storage.Store
	metrics   *observability.ScorerMetrics
	cfg       Config
}

// New builds an Engine. metrics may be nil (no instrumentation, used in
// tests); everything else is required.
func New(kbStore *kb.Store, bank *checks.Bank, retriever Retriever, judger Judger, rubric scoring.RubricConfig, store *storage.Store, metrics *observability.ScorerMetrics, cfg Config) *Engine {
	return &Engine{
		kb:        kbStore,
		bank:      bank,
		retriever: retriever,
		judge:     judger,
		rubric:    rubric,
		store:     store,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// SegmentID derives the deterministic segment identifier for a target
// text. Content-addressed so re-evaluating the same segment yields the
// same id.
func SegmentID(targetText string) string {
	sum := sha256.Sum256([]byte(targetText))
	return "seg_" + hex.EncodeToString(sum[:4])
}

// Evaluate runs one evaluation job.
//
// # Description
//
// Resolves the knowledge base, runs the validator bank and the hybrid
// retriever concurrently, judges the target against the retrieved
// shortlist, aggregates and scores the findings, and persists the
// report under a fresh job_id.
//
// # Outputs
//   - *datatypes.ScoreReport: always complete when err is nil, possibly
//     carrying Warnings for degraded subsystems.
//   - error: invalid request, unknown knowledge base, or a storage
//     failure. Subsystem degradation is not an error.
func (e *Engine) Evaluate(ctx context.Context, req datatypes.EvaluationRequest) (*datatypes.ScoreReport, error) {
	ctx, span := otel.Tracer("lexgate.engine").Start(ctx, "engine.Evaluate")
	defer span.End()
	started := time.Now()

	if err := req.Validate(); err != nil {
		e.countEvaluation(req.Locale, "error")
		return nil, err
	}

	index, err := e.kb.Resolve(req.KBVersion, req.Locale)
	if err != nil {
		e.countEvaluation(req.Locale, "error")
		return nil, fmt.Errorf("resolve knowledge base: %w", err)
	}
	rules := index.Rules()
	segmentID := SegmentID(req.TargetText)

	var (
		warnings          []string
		validatorFindings []datatypes.Finding
		candidates        []retrieval.Candidate
	)

	// The validator bank and the retriever have no data dependency.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		validatorFindings = e.bank.Run(segmentID, req.SourceText, req.TargetText, req.Locale, rules)
		return nil
	})
	g.Go(func() error {
		query := retrieval.QueryText(req.SourceText, req.TargetText)
		found, err := e.retriever.Search(gctx, query, req.Locale, rules)
		if errors.Is(err, retrieval.ErrDegraded) {
			warnings = append(warnings, "retrieval degraded to lexical-only ranking")
			e.countDegraded()
			err = nil
		}
		if err != nil {
			slog.Warn("Retrieval failed, judging skipped", "error", err)
			warnings = append(warnings, "rule retrieval unavailable")
			return nil
		}
		candidates = found
		return nil
	})
	_ = g.Wait() // goroutines report through warnings, never errors

	ruleJudgeFindings := e.runRuleJudge(ctx, segmentID, req, candidates, &warnings)

	var qualityFindings []datatypes.Finding
	if e.cfg.EnableQualityJudge {
		qualityFindings, err = e.judge.EvaluateQuality(ctx, segmentID, req.SourceText, req.TargetText, req.Locale)
		if err != nil {
			e.countJudgeFailure(err)
			slog.Warn("Quality judge unavailable", "error", err)
			warnings = append(warnings, "quality assessment unavailable")
			qualityFindings = nil
		}
	}

	findings := aggregate(validatorFindings, ruleJudgeFindings, qualityFindings, index.Has)
	result := scoring.Score(findings, e.rubric)

	report := &datatypes.ScoreReport{
		JobID:              uuid.NewString(),
		KBVersion:          index.Version(),
		RubricVersion:      e.rubric.RubricVersion,
		ModelPromptVersion: ModelPromptVersion,
		FinalScore:         result.FinalScore,
		Band:               result.Band,
		Findings:           result.Findings,
		ByMacro:            result.ByMacro,
		Warnings:           warnings,
		SourceText:         req.SourceText,
		TargetText:         req.TargetText,
		Locale:             req.Locale,
		CreatedAt:          time.Now().UTC(),
	}

	if err := e.store.SaveBaseReport(report); err != nil {
		e.countEvaluation(req.Locale, "error")
		return nil, fmt.Errorf("persist base report: %w", err)
	}
	if err := e.store.SaveReport(report); err != nil {
		e.countEvaluation(req.Locale, "error")
		return nil, fmt.Errorf("persist report: %w", err)
	}

	e.observe(report, validatorFindings, ruleJudgeFindings, qualityFindings, started)
	span.SetAttributes(
		attribute.String("job_id", report.JobID),
		attribute.Float64("final_score", report.FinalScore),
		attribute.Int("findings", len(report.Findings)),
	)
	return report, nil
}

func (e *Engine) runRuleJudge(ctx context.Context, segmentID string, req datatypes.EvaluationRequest, candidates []retrieval.Candidate, warnings *[]string) []datatypes.Finding {
	if len(candidates) == 0 {
		return nil
	}
	shortlist := make([]datatypes.Rule, len(candidates))
	for i, c := range candidates {
		shortlist[i] = *c.Rule
	}
	findings, err := e.judge.EvaluateRules(ctx, segmentID, req.SourceText, req.TargetText, req.Locale, shortlist)
	if err != nil {
		e.countJudgeFailure(err)
		slog.Warn("Rule judge unavailable, deterministic findings stand alone", "error", err)
		*warnings = append(*warnings, "rule judging unavailable")
		return nil
	}
	return findings
}

// =============================================================================
// Metrics plumbing
// =============================================================================

func (e *Engine) countEvaluation(locale, status string) {
	if e.metrics != nil {
		e.metrics.EvaluationsTotal.WithLabelValues(locale, status).Inc()
	}
}

func (e *Engine) countDegraded() {
	if e.metrics != nil {
		e.metrics.DegradedRetrievalsTotal.Inc()
	}
}

func (e *Engine) countJudgeFailure(err error) {
	if e.metrics != nil && errors.Is(err, judge.ErrContractViolation) {
		e.metrics.JudgeContractViolationsTotal.Inc()
	}
}

func (e *Engine) observe(report *datatypes.ScoreReport, validator, ruleJudge, quality []datatypes.Finding, started time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.EvaluationsTotal.WithLabelValues(report.Locale, "success").Inc()
	e.metrics.EvaluationDurationSeconds.WithLabelValues(report.Locale).Observe(time.Since(started).Seconds())
	e.metrics.FinalScore.Observe(report.FinalScore)
	for _, f := range validator {
		e.metrics.FindingsTotal.WithLabelValues("validator", string(f.Severity)).Inc()
	}
	for _, f := range ruleJudge {
		e.metrics.FindingsTotal.WithLabelValues("judge", string(f.Severity)).Inc()
	}
	for _, f := range quality {
		e.metrics.FindingsTotal.WithLabelValues("quality", string(f.Severity)).Inc()
	}
}
