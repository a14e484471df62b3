// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the refine engine.
//
// The outcome-path labels mirror the audit trail: a caller watching
// dashboards can tell converged from exhausted from fallback-resolved
// without reading logs.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for engine metrics
const engineSubsystem = "refine"

// EngineMetrics holds all Prometheus metrics for compose operations.
// Initialize once at startup via NewEngineMetrics().
type EngineMetrics struct {
	// RequestsTotal counts compose requests.
	// Labels: outcome (converged, exhausted, aborted), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// StrategySelectedTotal counts selector decisions.
	// Labels: strategy, manual (true, false)
	StrategySelectedTotal *prometheus.CounterVec

	// ValidationPathTotal counts gate resolutions.
	// Labels: path (clean, llm_corrected, fallback, skipped)
	ValidationPathTotal *prometheus.CounterVec

	// RefinementIterations measures assessment rounds per request.
	RefinementIterations prometheus.Histogram

	// RequestDurationSeconds measures end-to-end compose latency.
	// Labels: outcome
	RequestDurationSeconds *prometheus.HistogramVec

	// MemoryDegradedTotal counts requests served stateless because the
	// store was unreachable.
	MemoryDegradedTotal prometheus.Counter

	// SweptSessionsTotal counts sessions removed by retention sweeps.
	SweptSessionsTotal prometheus.Counter
}

// NewEngineMetrics creates and registers all engine metrics with the
// default registry. Call once; duplicate registration panics by
// Prometheus convention.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "requests_total",
				Help:      "Compose requests by terminal outcome and status.",
			},
			[]string{"outcome", "status"},
		),
		StrategySelectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "strategy_selected_total",
				Help:      "Selector decisions by strategy and whether manually overridden.",
			},
			[]string{"strategy", "manual"},
		),
		ValidationPathTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "validation_path_total",
				Help:      "Validation gate resolutions by repair path.",
			},
			[]string{"path"},
		),
		RefinementIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "refinement_iterations",
				Help:      "Assessment rounds per compose request.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 10},
			},
		),
		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end compose latency.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"outcome"},
		),
		MemoryDegradedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "memory_degraded_total",
				Help:      "Requests served stateless because the memory store was unreachable.",
			},
		),
		SweptSessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: engineSubsystem,
				Name:      "swept_sessions_total",
				Help:      "Sessions removed by retention sweeps.",
			},
		),
	}
}
