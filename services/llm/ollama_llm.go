// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.refine.llm")

// OllamaClient talks to a local Ollama server over its native HTTP API.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient returns a client for the given server and model.
// An empty baseURL defaults to the standard local listener.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: 300 * time.Second},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate
//
// # Description
//
//	Runs a non-streaming completion against the Ollama /api/generate
//	endpoint. Sampling parameters that the caller leaves nil fall back
//	to conservative local-model defaults (temperature 0.2, top_k 20,
//	top_p 0.9, num_predict 8192).
//
// # Outputs
//
//	The raw completion text, or an error. Server-side (5xx) failures
//	and connection errors are wrapped in *TransientError; a 404 means
//	the model is not pulled and is returned as a permanent error with
//	a remediation hint.
func (c *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	options := map[string]any{
		"temperature": float32(0.2),
		"top_k":       20,
		"top_p":       float32(0.9),
		"num_predict": 8192,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal request")
		return "", fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return "", fmt.Errorf("failed to build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection failed")
		return "", &TransientError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return "", &TransientError{Provider: "ollama", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		slog.Error("Ollama model not found", "model", c.model)
		return "", fmt.Errorf("model %q not found on ollama server, run 'ollama pull %s'", c.model, c.model)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		err := fmt.Errorf("ollama server returned status %d: %s", resp.StatusCode, string(respBytes))
		span.RecordError(err)
		span.SetStatus(codes.Error, "server error")
		return "", &TransientError{Provider: "ollama", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama server returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("ollama reported an error: %s", parsed.Error)
	}

	span.SetAttributes(attribute.Int("llm.completion_chars", len(parsed.Response)))
	return parsed.Response, nil
}
