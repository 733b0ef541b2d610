// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval ranks candidate rules for a source/target pair using
// a weighted blend of embedding similarity and lexical token overlap.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexgate/lexgate/services/llm"
	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// ErrDegraded signals that the embedding capability was unavailable and
// the returned ranking was produced from lexical overlap alone. Callers
// get results AND this error; they decide whether to surface a warning.
var ErrDegraded = errors.New("retrieval degraded to lexical-only ranking")

// Config tunes the blend. Weights should sum to 1 but the retriever does
// not enforce it; the blend is a linear combination either way.
type Config struct {
	SemanticWeight float64
	LexicalWeight  float64
	TopK           int
}

// DefaultConfig returns the standard 0.7/0.3 blend with top_k of 20.
func DefaultConfig() Config {
	return Config{SemanticWeight: 0.7, LexicalWeight: 0.3, TopK: 20}
}

// Candidate is one ranked rule with its score decomposition.
type Candidate struct {
	Rule          *datatypes.Rule `json:"rule"`
	Score         float64         `json:"score"`
	SemanticScore float64         `json:"semantic_score"`
	LexicalScore  float64         `json:"lexical_score"`
}

// =============================================================================
// Retriever
// =============================================================================

// Retriever scores knowledge-base rules against an evaluation query.
//
// # Thread Safety
//
// Stateless apart from the embedding client; safe for concurrent use.
type Retriever struct {
	embedder llm.EmbeddingClient
	cfg      Config
}

// NewRetriever builds a Retriever. A nil embedder is allowed and forces
// lexical-only operation (every search returns ErrDegraded).
func NewRetriever(embedder llm.EmbeddingClient, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	return &Retriever{embedder: embedder, cfg: cfg}
}

// QueryText builds the retrieval query from a segment pair.
func QueryText(sourceText, targetText string) string {
	return fmt.Sprintf("Source: %s\nTarget: %s", sourceText, targetText)
}

// Search ranks rules for the query and returns the top candidates.
//
// # Description
//
// Rules are filtered to the locale before scoring. Each surviving rule
// gets `semanticWeight x cosine + lexicalWeight x lexical`. Lexical
// similarity is asymmetric: shared lowercase tokens divided by the query
// token count, so verbose rules are not penalized. Ties break on rule_id
// ascending so the ranking is reproducible.
//
// # Outputs
//   - []Candidate: at most TopK candidates, best first.
//   - error: ErrDegraded (with results) when embeddings were unavailable,
//     or a hard failure when nothing could be ranked.
func (r *Retriever) Search(ctx context.Context, queryText, locale string, rules []datatypes.Rule) ([]Candidate, error) {
	ctx, span := otel.Tracer("lexgate.retrieval").Start(ctx, "retrieval.Search")
	defer span.End()

	scoped := filterLocale(rules, locale)
	if len(scoped) == 0 {
		return nil, nil
	}

	queryEmbedding, degraded := r.embedQuery(ctx, queryText)

	queryTokens := tokenize(queryText)
	candidates := make([]Candidate, 0, len(scoped))
	for i := range scoped {
		rule := scoped[i]
		lexical := lexicalOverlap(queryTokens, tokenize(rule.RetrievalText()))

		semantic := 0.0
		if !degraded && len(rule.Embedding) > 0 {
			semantic = cosine(queryEmbedding, rule.Embedding)
		}

		score := r.cfg.SemanticWeight*semantic + r.cfg.LexicalWeight*lexical
		if degraded {
			// Lexical signal carries the whole ranking when embeddings
			// are down; keep it unscaled so ordering stays meaningful.
			score = lexical
		}
		candidates = append(candidates, Candidate{
			Rule:          rule,
			Score:         score,
			SemanticScore: semantic,
			LexicalScore:  lexical,
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}
		return candidates[a].Rule.RuleID < candidates[b].Rule.RuleID
	})

	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}

	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(candidates)),
		attribute.Bool("retrieval.degraded", degraded),
	)
	if degraded {
		return candidates, ErrDegraded
	}
	return candidates, nil
}

// embedQuery returns the query embedding, or degraded=true when the
// embedding capability is missing or failing.
func (r *Retriever) embedQuery(ctx context.Context, queryText string) ([]float32, bool) {
	if r.embedder == nil {
		return nil, true
	}
	vectors, err := r.embedder.Embed(ctx, []string{queryText})
	if err != nil || len(vectors) == 0 {
		slog.Warn("Embedding unavailable, degrading to lexical ranking", "error", err)
		return nil, true
	}
	return vectors[0], false
}

// =============================================================================
// Scoring primitives
// =============================================================================

func filterLocale(rules []datatypes.Rule, locale string) []*datatypes.Rule {
	out := make([]*datatypes.Rule, 0, len(rules))
	for i := range rules {
		if locale == "" || rules[i].Citation.Locale == "" || rules[i].Citation.Locale == locale {
			out = append(out, &rules[i])
		}
	}
	return out
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// lexicalOverlap measures shared unique tokens against the query's unique
// token count only, never the rule's.
func lexicalOverlap(queryTokens, ruleTokens []string) float64 {
	querySet := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		querySet[tok] = struct{}{}
	}
	if len(querySet) == 0 {
		return 0
	}
	ruleSet := make(map[string]struct{}, len(ruleTokens))
	for _, tok := range ruleTokens {
		ruleSet[tok] = struct{}{}
	}
	shared := 0
	for tok := range querySet {
		if _, ok := ruleSet[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(querySet))
}

// cosine computes cosine similarity between two vectors. Mismatched
// lengths or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
