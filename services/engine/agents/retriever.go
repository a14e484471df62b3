// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
)

// Snippet is one ranked retrieval result.
type Snippet struct {
	Content string
	Source  string
	Score   float64
}

// Retriever supplies ranked snippets for prompt grounding. How
// relevance is computed is the implementation's concern.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// WeaviateRetriever searches a Weaviate Document class via near-text.
type WeaviateRetriever struct {
	client    *weaviate.Client
	className string
}

// NewWeaviateRetriever builds a retriever over the given class. An
// empty className defaults to Document.
func NewWeaviateRetriever(client *weaviate.Client, className string) *WeaviateRetriever {
	if className == "" {
		className = "Document"
	}
	return &WeaviateRetriever{client: client, className: className}
}

// Search runs a near-text query and returns up to k snippets, best
// match first.
func (r *WeaviateRetriever) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search returned errors: %v", result.Errors[0].Message)
	}

	data := make(map[string]interface{}, len(result.Data))
	for key, value := range result.Data {
		data[key] = value
	}
	snippets := parseSnippets(data, r.className)
	slog.Debug("Retrieved snippets", "query_chars", len(query), "count", len(snippets))
	return snippets, nil
}

// parseSnippets walks the GraphQL Get payload. Entries missing expected
// fields are skipped rather than failing the whole result.
func parseSnippets(data map[string]interface{}, className string) []Snippet {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := get[className].([]interface{})
	if !ok {
		return nil
	}

	snippets := make([]Snippet, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		content, ok := obj["content"].(string)
		if !ok {
			continue
		}
		snippet := Snippet{Content: content}
		if source, ok := obj["source"].(string); ok {
			snippet.Source = source
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				snippet.Score = certainty
			}
		}
		snippets = append(snippets, snippet)
	}
	return snippets
}
