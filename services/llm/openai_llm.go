// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible endpoint (OpenAI itself,
// LM Studio, vLLM). It implements both LLMClient and EmbeddingClient since
// the compatible servers expose chat completions and embeddings on the same
// base URL.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	embedModel string
}

// NewOpenAIClient builds a client from environment configuration:
//
//   - OPENAI_API_KEY: API key, or a placeholder for local servers
//   - OPENAI_BASE_URL: override for OpenAI-compatible local endpoints
//   - OPENAI_MODEL: chat model (default gpt-4o-mini)
//   - OPENAI_EMBED_MODEL: embedding model (default text-embedding-3-small)
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := strings.TrimSuffix(os.Getenv("OPENAI_BASE_URL"), "/")
	model := os.Getenv("OPENAI_MODEL")
	embedModel := os.Getenv("OPENAI_EMBED_MODEL")

	if apiKey == "" {
		if baseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		// Local OpenAI-compatible servers accept any key.
		apiKey = "local"
		slog.Info("No OPENAI_API_KEY set, using placeholder for local endpoint", "base_url", baseURL)
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if embedModel == "" {
		embedModel = "text-embedding-3-small"
		slog.Warn("OPENAI_EMBED_MODEL not set, defaulting to text-embedding-3-small")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	slog.Info("Initializing OpenAI client", "model", model, "embed_model", embedModel)
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		embedModel: embedModel,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return o.Chat(ctx, ChatRequest{User: prompt, Params: params})
}

// Chat implements the LLMClient interface with system prompt and JSON-mode
// support.
func (o *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.User,
	})

	apiReq := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.ForceJSON {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if req.Params.Temperature != nil {
		apiReq.Temperature = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		apiReq.TopP = *req.Params.TopP
	}
	if req.Params.MaxTokens != nil {
		apiReq.MaxCompletionTokens = *req.Params.MaxTokens
	}
	if len(req.Params.Stop) > 0 {
		apiReq.Stop = req.Params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		slog.Error("OpenAI chat completion failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received chat completion", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Embed implements the EmbeddingClient interface.
func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: texts,
	})
	if err != nil {
		slog.Error("OpenAI embeddings call failed", "error", err, "texts", len(texts))
		return nil, fmt.Errorf("OpenAI embeddings call failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(resp.Data))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

var (
	_ LLMClient       = (*OpenAIClient)(nil)
	_ EmbeddingClient = (*OpenAIClient)(nil)
)
