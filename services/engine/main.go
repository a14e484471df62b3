// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianRefine/pkg/logging"
	"github.com/AleutianAI/AleutianRefine/services/engine/agents"
	"github.com/AleutianAI/AleutianRefine/services/engine/config"
	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
	"github.com/AleutianAI/AleutianRefine/services/engine/observability"
	"github.com/AleutianAI/AleutianRefine/services/engine/pipeline"
	"github.com/AleutianAI/AleutianRefine/services/engine/routes"
	"github.com/AleutianAI/AleutianRefine/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("refine-engine")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// buildModel assembles the provider chain from configuration. Ollama is
// always first; OpenAI is appended as a failover target when enabled
// and its credentials resolve.
func buildModel(cfg config.Config) (llm.LLMClient, error) {
	providers := []llm.ChainProvider{
		{Name: "ollama", Client: llm.NewOllamaClient(cfg.LLM.OllamaURL, cfg.LLM.OllamaModel)},
	}
	if cfg.LLM.UseOpenAI {
		openaiClient, err := llm.NewOpenAIClient()
		if err != nil {
			slog.Warn("OpenAI failover unavailable", "error", err)
		} else {
			providers = append(providers, llm.ChainProvider{Name: "openai", Client: openaiClient})
		}
	}
	return llm.NewProviderChain(cfg.LLM.ProviderCooldown, providers...)
}

func main() {
	configPath := os.Getenv("REFINE_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{Level: logging.LevelInfo, Service: "engine", JSON: true})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if cfg.Tracing.Enabled {
		cleanup, err := initTracer(cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	model, err := buildModel(cfg)
	if err != nil {
		log.Fatalf("failed to initialize the LLM provider chain: %v", err)
	}

	// The store is optional. When BadgerDB cannot open, the engine runs
	// stateless and every response carries the degraded flag.
	var store *memory.Store
	storeCfg := memory.DefaultConfig()
	storeCfg.Path = cfg.Memory.Path
	storeCfg.Logger = slog.Default()
	store, err = memory.Open(storeCfg)
	if err != nil {
		slog.Warn("Memory store unavailable. Running stateless.", "path", cfg.Memory.Path, "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	var retriever agents.Retriever
	if cfg.Weaviate.Enabled {
		weaviateClient, err := weaviate.NewClient(weaviate.Config{
			Host:   cfg.Weaviate.Host,
			Scheme: cfg.Weaviate.Scheme,
		})
		if err != nil {
			slog.Warn("Failed to create Weaviate client. Drafts will be ungrounded.", "error", err)
		} else {
			retriever = agents.NewWeaviateRetriever(weaviateClient, cfg.Weaviate.Class)
		}
	} else {
		slog.Info("Weaviate disabled. Drafts will be generated without retrieved material.")
	}

	metrics := observability.NewEngineMetrics()
	opts := pipeline.Options{Retriever: retriever, Metrics: metrics}
	if store != nil {
		opts.Store = store
	}
	engine, err := pipeline.New(model, cfg.Budget, opts)
	if err != nil {
		log.Fatalf("failed to build the pipeline: %v", err)
	}

	if configPath != "" {
		watcher, werr := config.Watch(configPath, func(next config.Config) {
			slog.Info("Configuration reloaded. Budget and cooldown changes apply on restart.",
				"max_iterations", next.Budget.MaxIterations)
		})
		if werr != nil {
			slog.Warn("Config watcher unavailable", "error", werr)
		} else {
			defer watcher.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background retention sweep.
	if store != nil && cfg.Memory.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Memory.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					deleted, serr := engine.Sweep(ctx, cfg.Memory.RetentionAge)
					if serr != nil {
						slog.Error("retention sweep failed", "error", serr)
						continue
					}
					if deleted > 0 {
						slog.Info("Retention sweep removed idle sessions", "deleted", deleted)
					}
				}
			}
		}()
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("refine-engine"))
	routes.SetupRoutes(router, engine, store, cfg.Server.MetricsPath, cfg.Memory.RetentionAge)

	server := &http.Server{Addr: ":" + cfg.Server.Port, Handler: router}
	go func() {
		slog.Info("Starting the refine engine", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}
