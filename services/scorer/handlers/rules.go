// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lexgate/lexgate/pkg/validation"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

// SearchRules handles GET /v1/rules/search: exposes the hybrid
// retriever for KB exploration and debugging of shortlists.
//
// Query parameters: q (required), locale (required), kb_version and
// top_k (optional).
func SearchRules(kbStore *kb.Store, retriever engine.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		locale := c.Query("locale")
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
			return
		}
		if err := validation.ValidateLocale(locale); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		index, err := kbStore.Resolve(c.Query("kb_version"), locale)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}

		candidates, err := retriever.Search(c.Request.Context(), query, locale, index.Rules())
		degraded := err != nil && len(candidates) > 0
		if err != nil && len(candidates) == 0 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if limit, convErr := strconv.Atoi(c.Query("top_k")); convErr == nil && limit > 0 && limit < len(candidates) {
			candidates = candidates[:limit]
		}

		results := make([]datatypes.RuleSearchResult, len(candidates))
		for i, cand := range candidates {
			results[i] = datatypes.RuleSearchResult{
				RuleID:   cand.Rule.RuleID,
				Score:    cand.Score,
				Semantic: cand.SemanticScore,
				Lexical:  cand.LexicalScore,
				RuleText: cand.Rule.RuleText,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"kb_version": index.Version(),
			"results":    results,
			"degraded":   degraded,
		})
	}
}

// GetRule handles GET /v1/rules/:ruleID: one rule by id within a
// kb_version (query parameter, required).
func GetRule(kbStore *kb.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		version := c.Query("kb_version")
		if version == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kb_version is required"})
			return
		}
		rule, err := kbStore.GetRule(c.Param("ruleID"), version)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// ListKB handles GET /v1/kb: metadata of every knowledge base snapshot.
func ListKB(kbStore *kb.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := kbStore.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if list == nil {
			list = []datatypes.KnowledgeBase{}
		}
		c.JSON(http.StatusOK, gin.H{"knowledge_bases": list, "count": len(list)})
	}
}

// Stats handles GET /v1/stats: headline numbers for dashboards.
func Stats(store *storage.Store, kbStore *kb.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := store.ComputeStats()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		kbs, err := kbStore.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, datatypes.StatsResponse{
			Evaluations:    stats.Reports,
			KnowledgeBases: len(kbs),
			MeanScore:      stats.AverageScore,
		})
	}
}
