// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestMetrics returns gin middleware that records request count and
// duration on metrics.
//
// Description:
//
//	Routes are labeled by their registered template (c.FullPath()) so that
//	run IDs do not explode label cardinality. Requests that matched no
//	route are labeled "unmatched". When the request context carries a span
//	(e.g. from otelgin), 5xx responses mark it as failed.
//
// Inputs:
//
//	metrics - Instruments to record on. May be nil.
//
// Outputs:
//
//	gin.HandlerFunc - Middleware to register with router.Use.
//
// Thread Safety: Safe for concurrent use.
func RequestMetrics(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		ctx := c.Request.Context()

		metrics.ObserveRequest(ctx, c.Request.Method, route, status, time.Since(start))

		span := trace.SpanFromContext(ctx)
		span.SetAttributes(attribute.String("chainstat.route", route))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
