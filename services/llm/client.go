// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"

	"golang.org/x/time/rate"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ChatRequest carries a system/user prompt pair for a single completion.
// ForceJSON asks the backend to constrain output to a JSON object; backends
// without native JSON mode fall back to prompt instruction only.
type ChatRequest struct {
	System    string
	User      string
	Params    GenerationParams
	ForceJSON bool
}

// LLMClient defines the standard interface for any judging backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// EmbeddingClient defines the embedding capability. Vectors have a fixed
// dimensionality per model identifier; callers treat them as opaque.
type EmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// =============================================================================
// Rate Limiting
// =============================================================================

// RateLimited wraps an LLMClient and an EmbeddingClient behind a shared
// token-bucket limiter so that concurrent evaluation jobs cannot exhaust the
// backend.
type RateLimited struct {
	chat    LLMClient
	embed   EmbeddingClient
	limiter *rate.Limiter
}

// NewRateLimited wraps the provided clients with a limiter allowing rps
// requests per second with the given burst.
func NewRateLimited(chat LLMClient, embed EmbeddingClient, rps float64, burst int) *RateLimited {
	return &RateLimited{
		chat:    chat,
		embed:   embed,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.chat.Generate(ctx, prompt, params)
}

func (r *RateLimited) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.chat.Chat(ctx, req)
}

func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.embed.Embed(ctx, texts)
}

var (
	_ LLMClient       = (*RateLimited)(nil)
	_ EmbeddingClient = (*RateLimited)(nil)
)
