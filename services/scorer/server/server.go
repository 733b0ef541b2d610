// Copyright (C) 2025 LexGate Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server boots the scorer service from environment configuration.
//
// Recognized variables:
//
//	SCORER_PORT                 - listen port (default 12310)
//	LEXGATE_KB_DIR              - knowledge base snapshot directory (default ./kb)
//	LEXGATE_DATA_DIR            - badger storage directory (default ./data/scorer)
//	LEXGATE_RUBRIC_PATH         - rubric YAML override (default embedded rubric)
//	LEXGATE_API_TOKEN           - pre-shared bearer token; unset allows anonymous
//	LEXGATE_QUALITY_JUDGE       - "true" enables the general quality pass
//	LEXGATE_LLM_RPS             - LLM request rate limit (default 4)
//	LLM_BACKEND_TYPE            - "openai" or "ollama" (default ollama)
//	OTEL_EXPORTER_OTLP_ENDPOINT - OTLP collector address (default localhost:4317)
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lexgate/lexgate/services/llm"
	"github.com/lexgate/lexgate/services/scorer/checks"
	"github.com/lexgate/lexgate/services/scorer/engine"
	"github.com/lexgate/lexgate/services/scorer/judge"
	"github.com/lexgate/lexgate/services/scorer/kb"
	"github.com/lexgate/lexgate/services/scorer/middleware"
	"github.com/lexgate/lexgate/services/scorer/observability"
	"github.com/lexgate/lexgate/services/scorer/retrieval"
	"github.com/lexgate/lexgate/services/scorer/review"
	"github.com/lexgate/lexgate/services/scorer/routes"
	"github.com/lexgate/lexgate/services/scorer/scoring"
	"github.com/lexgate/lexgate/services/scorer/storage"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// InitTracer configures the global OTLP tracer and returns its shutdown
// function.
func InitTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("lexgate-scorer")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func newLLMClient() (llm.LLMClient, llm.EmbeddingClient, error) {
	var (
		client interface {
			llm.LLMClient
			llm.EmbeddingClient
		}
		err error
	)
	switch backend := os.Getenv("LLM_BACKEND_TYPE"); backend {
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("using OpenAI LLM backend")
	case "ollama", "":
		client, err = llm.NewOllamaClient()
		slog.Info("using Ollama LLM backend")
	default:
		return nil, nil, errors.New("unknown LLM_BACKEND_TYPE " + backend)
	}
	if err != nil {
		return nil, nil, err
	}

	rps := 4.0
	if v, convErr := strconv.ParseFloat(os.Getenv("LEXGATE_LLM_RPS"), 64); convErr == nil && v > 0 {
		rps = v
	}
	limited := llm.NewRateLimited(client, client, rps, int(rps)+1)
	return limited, limited, nil
}

func loadRubric() (scoring.RubricConfig, error) {
	if path := os.Getenv("LEXGATE_RUBRIC_PATH"); path != "" {
		slog.Info("loading rubric override", "path", path)
		return scoring.LoadRubric(path)
	}
	return scoring.DefaultRubric(), nil
}

// pipelineConfigs derives the checks and judge configurations from the
// loaded rubric so all three stages price a severity identically. A
// rubric override changes the multipliers everywhere at once; the
// override recomputation in review divides the multiplier back out of a
// stored penalty and relies on this agreement.
func pipelineConfigs(rubric scoring.RubricConfig) (checks.Config, judge.Config) {
	checksCfg := checks.DefaultConfig()
	checksCfg.SeverityMultipliers = rubric.SeverityMultipliers

	judgeCfg := judge.DefaultConfig()
	judgeCfg.SeverityMultipliers = rubric.SeverityMultipliers
	return checksCfg, judgeCfg
}

// Run assembles the scorer from the environment and serves until ctx is
// canceled, then shuts down gracefully.
func Run(ctx context.Context) error {
	kbStore, err := kb.NewStore(envOr("LEXGATE_KB_DIR", "./kb"))
	if err != nil {
		return fmt.Errorf("open knowledge base directory: %w", err)
	}
	go func() {
		if err := kbStore.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("knowledge base watcher stopped", "error", err)
		}
	}()

	store, err := storage.NewStore(storage.DefaultConfig(envOr("LEXGATE_DATA_DIR", "./data/scorer")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	rubric, err := loadRubric()
	if err != nil {
		return fmt.Errorf("load rubric: %w", err)
	}
	if err := rubric.Validate(); err != nil {
		return fmt.Errorf("invalid rubric: %w", err)
	}

	checksCfg, judgeCfg := pipelineConfigs(rubric)
	bank, err := checks.NewBank(checksCfg)
	if err != nil {
		return fmt.Errorf("compile deterministic checks: %w", err)
	}

	chatClient, embedClient, err := newLLMClient()
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}
	retriever := retrieval.NewRetriever(embedClient, retrieval.DefaultConfig())
	ruleJudge := judge.NewJudge(chatClient, judgeCfg)

	registry := prometheus.NewRegistry()
	metrics := observability.NewScorerMetrics(registry)

	eng := engine.New(kbStore, bank, retriever, ruleJudge, rubric, store, metrics, engine.Config{
		EnableQualityJudge: os.Getenv("LEXGATE_QUALITY_JUDGE") == "true",
	})
	ledger := review.NewLedger(store, rubric)

	var auth middleware.AuthProvider = middleware.NopAuthProvider{}
	if token := os.Getenv("LEXGATE_API_TOKEN"); token != "" {
		auth = middleware.StaticTokenProvider{Token: token}
	}

	router := gin.Default()
	routes.SetupRoutes(router, routes.Deps{
		Engine:    eng,
		Store:     store,
		KB:        kbStore,
		Ledger:    ledger,
		Retriever: retriever,
		Metrics:   metrics,
		Auth:      auth,
		Registry:  registry,
	})

	port := envOr("SCORER_PORT", "12310")
	server := &http.Server{Addr: ":" + port, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting the scorer server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
