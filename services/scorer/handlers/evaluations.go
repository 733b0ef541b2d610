// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers contains the Gin HTTP handlers for the scorer API.
//
// Handlers are constructor functions returning gin.HandlerFunc with
// their dependencies injected, so routes can be assembled without
// package-level state.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/observability"
	"github.com/lexgate/lexgate/services/scorer/review"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// Evaluate handles POST /v1/evaluations: runs one evaluation job and
// returns the persisted ScoreReport.
func Evaluate(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.EvaluationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report, err := eng.Evaluate(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// ListEvaluations handles GET /v1/evaluations: summaries of every
// stored job, newest first.
func ListEvaluations(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		summaries, err := store.ListReports()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if summaries == nil {
			summaries = []datatypes.ReportSummary{}
		}
		c.JSON(http.StatusOK, gin.H{"evaluations": summaries, "count": len(summaries)})
	}
}

// GetEvaluation handles GET /v1/evaluations/:jobID: the job's current
// report snapshot (base findings folded with any overrides).
func GetEvaluation(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := store.GetReport(c.Param("jobID"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// GetFindings handles GET /v1/evaluations/:jobID/findings: the folded
// per-finding review states for display.
func GetFindings(ledger *review.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		findings, err := ledger.EffectiveFindings(c.Param("jobID"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if findings == nil {
			findings = []review.EffectiveFinding{}
		}
		c.JSON(http.StatusOK, gin.H{"findings": findings})
	}
}

// Override handles POST /v1/evaluations/:jobID/overrides: appends one
// reviewer correction and returns the recomputed snapshot.
func Override(ledger *review.Ledger, metrics *observability.ScorerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.OverrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := ledger.Apply(c.Param("jobID"), req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if metrics != nil {
			metrics.OverridesTotal.WithLabelValues(string(req.Action)).Inc()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// GetEvents handles GET /v1/evaluations/:jobID/events: the job's full
// audit trail in append order.
func GetEvents(ledger *review.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := ledger.Events(c.Param("jobID"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if events == nil {
			events = []datatypes.FeedbackEvent{}
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// statusFor maps pipeline errors onto HTTP statuses. Reference failures
// are 404; anything else that escaped request validation is internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, review.ErrTargetNotFound),
		errors.Is(err, kb.ErrNotFound),
		errors.Is(err, kb.ErrRuleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
