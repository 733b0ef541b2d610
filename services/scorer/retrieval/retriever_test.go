// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexgate/lexgate/services/scorer/datatypes"
)

// stubEmbedder returns a fixed vector per input, or fails.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func retrievalRules() []datatypes.Rule {
	return []datatypes.Rule{
		{
			RuleID:    "MQM-PUNC-001",
			RuleText:  "punctuation width must match locale",
			Embedding: []float32{1, 0, 0},
		},
		{
			RuleID:    "MQM-TERM-002",
			RuleText:  "glossary terms are mandatory",
			Embedding: []float32{0, 1, 0},
		},
		{
			RuleID:    "MQM-STYL-003",
			RuleText:  "register must stay formal",
			Embedding: []float32{0, 0, 1},
		},
	}
}

func TestSearch_BlendsSemanticAndLexical(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, DefaultConfig())

	query := QueryText("punctuation width sample", "标点 width sample")
	got, err := r.Search(context.Background(), query, "zh-CN", retrievalRules())
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Perfect cosine and the highest lexical overlap both point at the
	// punctuation rule.
	assert.Equal(t, "MQM-PUNC-001", got[0].Rule.RuleID)
	assert.InDelta(t, 1.0, got[0].SemanticScore, 1e-9)
	assert.Greater(t, got[0].LexicalScore, got[1].LexicalScore)
	assert.InDelta(t,
		0.7*got[0].SemanticScore+0.3*got[0].LexicalScore,
		got[0].Score, 1e-9)
}

func TestSearch_TieBreaksOnRuleID(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0, 0, 0}} // zero vector: all semantic 0
	r := NewRetriever(embedder, DefaultConfig())

	rules := []datatypes.Rule{
		{RuleID: "MQM-B-002", RuleText: "unrelated text here", Embedding: []float32{0, 1, 0}},
		{RuleID: "MQM-A-001", RuleText: "different unrelated words", Embedding: []float32{1, 0, 0}},
	}

	got, err := r.Search(context.Background(), "nothing shared", "en-US", rules)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MQM-A-001", got[0].Rule.RuleID)
	assert.Equal(t, got[0].Score, got[1].Score)
}

func TestSearch_TopKTruncation(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	cfg := DefaultConfig()
	cfg.TopK = 2
	r := NewRetriever(embedder, cfg)

	got, err := r.Search(context.Background(), "punctuation width", "zh-CN", retrievalRules())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearch_LocaleFilter(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	r := NewRetriever(embedder, DefaultConfig())

	rules := []datatypes.Rule{
		{RuleID: "MQM-ZH-001", RuleText: "width", Citation: datatypes.Citation{Locale: "zh-CN"}},
		{RuleID: "MQM-JA-001", RuleText: "width", Citation: datatypes.Citation{Locale: "ja-JP"}},
		{RuleID: "MQM-ANY-001", RuleText: "width"},
	}

	got, err := r.Search(context.Background(), "width", "zh-CN", rules)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].Rule.RuleID, got[1].Rule.RuleID}
	assert.ElementsMatch(t, []string{"MQM-ZH-001", "MQM-ANY-001"}, ids)
}

func TestSearch_DegradesToLexicalOnEmbedderFailure(t *testing.T) {
	embedder := &stubEmbedder{err: errors.New("connection refused")}
	r := NewRetriever(embedder, DefaultConfig())

	got, err := r.Search(context.Background(), "glossary terms", "zh-CN", retrievalRules())
	require.ErrorIs(t, err, ErrDegraded)
	require.NotEmpty(t, got)
	assert.Equal(t, "MQM-TERM-002", got[0].Rule.RuleID)
	assert.Zero(t, got[0].SemanticScore)
	assert.Equal(t, got[0].LexicalScore, got[0].Score)
}

func TestSearch_NilEmbedderIsAlwaysDegraded(t *testing.T) {
	r := NewRetriever(nil, DefaultConfig())

	got, err := r.Search(context.Background(), "register formal", "zh-CN", retrievalRules())
	assert.ErrorIs(t, err, ErrDegraded)
	assert.NotEmpty(t, got)
}

func TestSearch_EmptyRules(t *testing.T) {
	r := NewRetriever(&stubEmbedder{vector: []float32{1}}, DefaultConfig())

	got, err := r.Search(context.Background(), "anything", "zh-CN", nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_Deterministic(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.3, 0.5, 0.2}}
	r := NewRetriever(embedder, DefaultConfig())

	query := QueryText("glossary punctuation register", "术语 标点")
	first, err1 := r.Search(context.Background(), query, "zh-CN", retrievalRules())
	second, err2 := r.Search(context.Background(), query, "zh-CN", retrievalRules())
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Rule.RuleID, second[i].Rule.RuleID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestLexicalOverlap(t *testing.T) {
	tests := []struct {
		name  string
		query string
		rule  string
		want  float64
	}{
		{"full overlap", "width must match", "width must match locale", 1.0},
		{"half overlap", "width locale", "width rules", 0.5},
		{"no overlap", "alpha beta", "gamma delta", 0.0},
		{"empty query", "", "anything", 0.0},
		{"duplicate query tokens count once", "width width match", "width", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexicalOverlap(tokenize(tt.query), tokenize(tt.rule))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosine([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, cosine(nil, nil))
	assert.Zero(t, cosine([]float32{0, 0}, []float32{1, 1}))
}
