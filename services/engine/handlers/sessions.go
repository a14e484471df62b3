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
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianRefine/services/engine/memory"
	"github.com/AleutianAI/AleutianRefine/services/engine/pipeline"
)

func ListSessions(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to list sessions")
		sessions, err := store.ListSessions(c.Request.Context())
		if err != nil {
			slog.Error("failed to list sessions", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
	}
}

// GetSessionHistory returns a session's metadata plus its full turn log
// in chronological order.
func GetSessionHistory(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		fp := c.Param("fingerprint")
		sess, err := store.GetSession(c.Request.Context(), fp)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown session fingerprint"})
				return
			}
			slog.Error("failed to load session", "fingerprint", fp, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
			return
		}
		turns, err := store.History(c.Request.Context(), fp)
		if err != nil {
			slog.Error("failed to load session history", "fingerprint", fp, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess, "turns": turns})
	}
}

func DeleteSession(store *memory.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		fp := c.Param("fingerprint")
		slog.Info("Received a request to delete a session", "fingerprint", fp)
		if err := store.DeleteSession(c.Request.Context(), fp); err != nil {
			slog.Error("failed to delete session", "fingerprint", fp, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_fingerprint": fp})
	}
}

type sweepRequest struct {
	MaxAgeHours int `json:"max_age_hours"`
}

// HandleSweep removes sessions idle longer than the requested age. A
// missing or zero body falls back to the configured retention age.
func HandleSweep(p *pipeline.Pipeline, defaultAge time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sweepRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		maxAge := defaultAge
		if req.MaxAgeHours > 0 {
			maxAge = time.Duration(req.MaxAgeHours) * time.Hour
		}
		deleted, err := p.Sweep(c.Request.Context(), maxAge)
		if err != nil {
			slog.Error("retention sweep failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		slog.Info("Retention sweep finished", "deleted", deleted, "max_age", maxAge)
		c.JSON(http.StatusOK, gin.H{"deleted_sessions": deleted})
	}
}
