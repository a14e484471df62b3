// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
	"github.com/AleutianAI/AleutianRefine/services/engine/pipeline"
)

var composeTracer = otel.Tracer("aleutian.refine.handlers")

// HandleCompose runs one generation request end to end and returns the
// full audit trail alongside the final content.
//
// # Description
//
// Binds a ComposeRequest from the body, delegates to the pipeline, and
// maps failures onto HTTP status codes. Field-level validation failures
// come back as 400 so callers can fix their payload; everything else is
// a 500.
func HandleCompose(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := composeTracer.Start(c.Request.Context(), "HandleCompose")
		defer span.End()

		var req datatypes.ComposeRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the compose request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		resp, err := p.Compose(ctx, &req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				slog.Warn("Rejected compose request", "request_id", req.RequestID, "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Compose failed", "request_id", req.RequestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HealthCheck reports liveness for container orchestration probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
