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
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ecp-platform/ecp/pkg/logging"
	"github.com/ecp-platform/ecp/services/resolution/config"
	"github.com/ecp-platform/ecp/services/resolution/observability"
	"github.com/ecp-platform/ecp/services/resolution/orchestrator"
	"github.com/ecp-platform/ecp/services/resolution/resilience"
	"github.com/ecp-platform/ecp/services/resolution/routes"
	"github.com/ecp-platform/ecp/services/resolution/stores"
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
		resource.WithAttributes(semconv.ServiceNameKey.String("resolution-service")))
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

func main() {
	logger, closeLogs, err := logging.New(logging.Config{
		Service: "resolution",
		LogDir:  os.Getenv("ECP_LOG_DIR"),
	})
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closeLogs()
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("ECP_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cleanup, err := initTracer(cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	graph, err := stores.NewNeo4jStore(cfg.Stores.Neo4jURI, cfg.Stores.Neo4jUser,
		cfg.Stores.Neo4jPassword, cfg.Stores.Neo4jDatabase, logger)
	if err != nil {
		log.Fatalf("failed to create graph store: %v", err)
	}
	defer graph.Close(context.Background())

	vector, err := stores.NewWeaviateStore(cfg.Stores.WeaviateURL, logger)
	if err != nil {
		log.Fatalf("failed to create vector store: %v", err)
	}

	registry, err := stores.NewPostgresRegistry(context.Background(), cfg.Stores.PostgresURL, logger)
	if err != nil {
		log.Fatalf("failed to create asset registry: %v", err)
	}
	defer registry.Close()

	semantic := stores.NewCubeClient(cfg.Stores.CubeURL, cfg.Stores.CubeAPIKey, logger)
	policy := stores.NewOPAClient(cfg.Stores.OPAURL, cfg.Stores.OPAPolicyPath, logger)

	executor := resilience.NewExecutor(resilience.ExecutorConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts: cfg.Resilience.RetryMaxAttempts,
			MinWait:     cfg.Resilience.RetryMinWait,
			MaxWait:     cfg.Resilience.RetryMaxWait,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Resilience.BreakerFailureThreshold,
			RecoveryTimeout:  cfg.Resilience.BreakerRecoveryTimeout,
		},
		CallTimeout: cfg.Resilience.CallTimeout,
	}, logger, metrics)

	cache := orchestrator.NewResolutionCache(cfg.CacheTTL, cfg.CacheSweepInterval, logger)
	defer cache.Stop()

	orch := orchestrator.New(graph, vector, registry, semantic, policy,
		executor, cache, orchestrator.Config{FailOpenPolicy: cfg.FailOpenPolicy},
		logger, metrics)

	if cfg.FailOpenPolicy {
		slog.Warn("Policy fallback configured FAIL-OPEN; unreachable policy engine will permit queries")
	}

	router := gin.Default()
	routes.SetupRoutes(router, orch)

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Resolution service starting", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
