// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the scorer.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "lexgate"
	scorerSubsystem  = "scorer"
)

// ScorerMetrics holds all Prometheus metrics for evaluation operations.
// Initialize once at startup via NewScorerMetrics().
type ScorerMetrics struct {
	// EvaluationsTotal counts evaluation jobs by locale and status
	// (success, error).
	EvaluationsTotal *prometheus.CounterVec

	// FindingsTotal counts emitted findings by source
	// (validator, judge, quality) and severity.
	FindingsTotal *prometheus.CounterVec

	// DegradedRetrievalsTotal counts evaluations that fell back to
	// lexical-only ranking.
	DegradedRetrievalsTotal prometheus.Counter

	// JudgeContractViolationsTotal counts judge responses rejected for
	// violating the output contract.
	JudgeContractViolationsTotal prometheus.Counter

	// OverridesTotal counts reviewer corrections by action.
	OverridesTotal *prometheus.CounterVec

	// EvaluationDurationSeconds measures end-to-end job latency.
	EvaluationDurationSeconds *prometheus.HistogramVec

	// FinalScore observes the distribution of final scores.
	FinalScore prometheus.Histogram
}

// NewScorerMetrics creates and registers all scorer metrics with the
// given registerer. Pass prometheus.DefaultRegisterer in production and
// a fresh registry in tests to avoid duplicate registration panics.
func NewScorerMetrics(reg prometheus.Registerer) *ScorerMetrics {
	factory := promauto.With(reg)
	return &ScorerMetrics{
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "evaluations_total",
			Help:      "Evaluation jobs by locale and status.",
		}, []string{"locale", "status"}),

		FindingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "findings_total",
			Help:      "Findings emitted by source and severity.",
		}, []string{"source", "severity"}),

		DegradedRetrievalsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "degraded_retrievals_total",
			Help:      "Evaluations served with lexical-only retrieval.",
		}),

		JudgeContractViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "judge_contract_violations_total",
			Help:      "Judge responses rejected for schema violations.",
		}),

		OverridesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "overrides_total",
			Help:      "Reviewer corrections by action.",
		}, []string{"action"}),

		EvaluationDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "evaluation_duration_seconds",
			Help:      "End-to-end evaluation latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"locale"}),

		FinalScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: scorerSubsystem,
			Name:      "final_score",
			Help:      "Distribution of final scores.",
			Buckets:   []float64{0, 50, 60, 70, 80, 85, 90, 95, 99, 100},
		}),
	}
}
