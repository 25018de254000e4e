// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/summary"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

// Config configures the HTTP server.
type Config struct {
	Runs     Runs
	Defaults Defaults
	Metrics  *telemetry.Metrics
	Logger   *logging.Logger

	// ServiceName names the server in traces.
	ServiceName string
}

// DefaultDefaults returns summary.DefaultOptions() as request defaults.
func DefaultDefaults() Defaults {
	o := summary.DefaultOptions()
	return Defaults{Stats: o.Stats, RoundTo: o.RoundTo}
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, cfg Config) {
	logger := logging.OrNop(cfg.Logger)

	router.GET("/health", HealthCheck)

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	v1 := router.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", ListRuns(cfg.Runs, logger))
			runs.GET("/:runId", GetRun(cfg.Runs, logger))
			runs.GET("/:runId/stats", GetRunStats(cfg.Runs, cfg.Defaults, logger))
			runs.GET("/:runId/summary", GetRunSummary(cfg.Runs, cfg.Defaults, logger))
			runs.DELETE("/:runId", DeleteRun(cfg.Runs, logger))
		}
	}
}

// NewRouter builds a gin engine with recovery, tracing, request metrics
// and every endpoint registered.
func NewRouter(cfg Config) *gin.Engine {
	name := cfg.ServiceName
	if name == "" {
		name = "chainstat"
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(name))
	router.Use(telemetry.RequestMetrics(cfg.Metrics))
	SetupRoutes(router, cfg)
	return router
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully within 10 seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *logging.Logger) error {
	logger = logging.OrNop(logger)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
