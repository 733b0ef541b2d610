// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes assembles the scorer HTTP API.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/handlers"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/middleware"
	"github.com/lexgate/lexgate/services/scorer/observability"
	"github.com/lexgate/lexgate/services/scorer/review"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// Deps carries everything the route table needs.
type Deps struct {
	Engine    *engine.Engine
	Store     *storage.Store
	KB        *kb.Store
	Ledger    *review.Ledger
	Retriever engine.Retriever
	Metrics   *observability.ScorerMetrics
	Auth      middleware.AuthProvider
	Registry  *prometheus.Registry
}

// SetupRoutes registers the full scorer API on the router.
//
// Description:
//
//	Wires tracing and auth middleware, the /v1 API group, and the
//	operational endpoints. Overrides require an authenticated caller;
//	reads and evaluations follow the provider's anonymous policy.
//
// Endpoints:
//
//	POST /v1/evaluations - Run one evaluation job
//	GET  /v1/evaluations - List stored jobs, newest first
//	GET  /v1/evaluations/:jobID - One job's current report
//	GET  /v1/evaluations/:jobID/findings - Folded finding states
//	POST /v1/evaluations/:jobID/overrides - Append a reviewer correction
//	GET  /v1/evaluations/:jobID/events - The job's audit trail
//	GET  /v1/rules/search - Hybrid rule retrieval
//	GET  /v1/rules/:ruleID - One rule by id
//	GET  /v1/kb - Knowledge base snapshots
//	GET  /v1/stats - Headline numbers
//	GET  /health - Liveness and component health
//	GET  /metrics - Prometheus scrape endpoint
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(otelgin.Middleware("lexgate-scorer"))

	router.GET("/health", handlers.HealthCheck(deps.Store, deps.KB))
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Auth))
	{
		v1.POST("/evaluations", handlers.Evaluate(deps.Engine))
		v1.GET("/evaluations", handlers.ListEvaluations(deps.Store))
		v1.GET("/evaluations/:jobID", handlers.GetEvaluation(deps.Store))
		v1.GET("/evaluations/:jobID/findings", handlers.GetFindings(deps.Ledger))
		v1.POST("/evaluations/:jobID/overrides", handlers.Override(deps.Ledger, deps.Metrics))
		v1.GET("/evaluations/:jobID/events", handlers.GetEvents(deps.Ledger))

		rules := v1.Group("/rules")
		{
			rules.GET("/search", handlers.SearchRules(deps.KB, deps.Retriever))
			rules.GET("/:ruleID", handlers.GetRule(deps.KB))
		}

		v1.GET("/kb", handlers.ListKB(deps.KB))
		v1.GET("/stats", handlers.Stats(deps.Store, deps.KB))
	}
}
