// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves stored runs and their posterior statistics over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/chainstat/pkg/logging"
	"github.com/AleutianAI/chainstat/services/trace/chain"
	"github.com/AleutianAI/chainstat/services/trace/stats"
	"github.com/AleutianAI/chainstat/services/trace/storage/badger"
	"github.com/AleutianAI/chainstat/services/trace/summary"
	"github.com/AleutianAI/chainstat/services/trace/telemetry"
)

// Runs is the run storage the handlers read from.
type Runs interface {
	List(ctx context.Context) ([]*badger.RunInfo, error)
	Info(ctx context.Context, id string) (*badger.RunInfo, error)
	Load(ctx context.Context, id string, opts ...chain.Option) (*chain.MultiTrace, *badger.RunInfo, error)
	Delete(ctx context.Context, id string) error
}

// Defaults are applied to query parameters a request omits.
type Defaults struct {
	Stats   stats.Options
	RoundTo int
}

// statsQuery holds the optional overrides of GET .../stats and .../summary.
type statsQuery struct {
	Alpha   *float64 `form:"alpha"`
	Start   *int     `form:"start"`
	Batches *int     `form:"batches"`
	Chain   *int     `form:"chain"`
	RoundTo *int     `form:"roundto" binding:"omitempty,gte=0,lte=15"`
}

func (q statsQuery) apply(d Defaults) (stats.Options, int) {
	opts := d.Stats
	if q.Alpha != nil {
		opts.Alpha = *q.Alpha
	}
	if q.Start != nil {
		opts.Start = *q.Start
	}
	if q.Batches != nil {
		opts.Batches = *q.Batches
	}
	if q.Chain != nil {
		opts.Chain = *q.Chain
	}
	roundTo := d.RoundTo
	if q.RoundTo != nil {
		roundTo = *q.RoundTo
	}
	return opts, roundTo
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, badger.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, stats.ErrInvalidOptions), errors.Is(err, chain.ErrChainOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, logger *logging.Logger, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		telemetry.LoggerWithTrace(c.Request.Context(), logger.Slog()).Error("request failed",
			"path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListRuns returns the metadata of every stored run, newest first.
func ListRuns(runs Runs, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := runs.List(c.Request.Context())
		if err != nil {
			fail(c, logger, err)
			return
		}
		if list == nil {
			list = []*badger.RunInfo{}
		}
		c.JSON(http.StatusOK, gin.H{"runs": list})
	}
}

// GetRun returns the metadata of one run.
func GetRun(runs Runs, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := runs.Info(c.Request.Context(), c.Param("runId"))
		if err != nil {
			fail(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// report loads a run and computes its statistics from the query. adjust,
// if non-nil, rewrites the options after validation.
func report(c *gin.Context, runs Runs, d Defaults, logger *logging.Logger, adjust func(stats.Options) stats.Options) (*stats.Report, int, error) {
	var q statsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return nil, 0, errors.Join(stats.ErrInvalidOptions, err)
	}
	opts, roundTo := q.apply(d)
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}

	if adjust != nil {
		opts = adjust(opts)
	}

	ctx := c.Request.Context()
	m, _, err := runs.Load(ctx, c.Param("runId"))
	if err != nil {
		return nil, 0, err
	}
	r, err := stats.ForMulti(ctx, m, opts, logger)
	if err != nil {
		return nil, 0, err
	}
	return r, roundTo, nil
}

// GetRunStats returns the statistics of a run as JSON.
//
// Query parameters alpha, start, batches and chain override the server
// defaults.
func GetRunStats(runs Runs, d Defaults, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, _, err := report(c, runs, d, logger, nil)
		if err != nil {
			fail(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, r)
	}
}

// GetRunSummary returns the text summary of a run.
func GetRunSummary(runs Runs, d Defaults, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, roundTo, err := report(c, runs, d, logger, summary.StatsOptions)
		if err != nil {
			fail(c, logger, err)
			return
		}
		var buf bytes.Buffer
		if err := summary.WriteReport(&buf, r, roundTo); err != nil {
			fail(c, logger, err)
			return
		}
		c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
	}
}

// DeleteRun removes a run.
func DeleteRun(runs Runs, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := runs.Delete(c.Request.Context(), c.Param("runId")); err != nil {
			fail(c, logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
