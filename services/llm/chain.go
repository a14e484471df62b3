// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ChainProvider is one named backend inside a ProviderChain.
type ChainProvider struct {
	Name   string
	Client LLMClient
}

// ProviderChain is an LLMClient that tries a fixed list of backends in
// order. When a backend fails with a TransientError the chain benches it
// for a cooldown window and moves to the next one, so a rate-limited
// provider is skipped without a probe call on every request. Permanent
// errors stop the chain immediately.
//
// The chain is safe for concurrent use.
type ProviderChain struct {
	providers []ChainProvider
	cooldown  time.Duration

	mu      sync.Mutex
	benched map[string]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// DefaultProviderCooldown is how long a provider stays benched after a
// transient failure before the chain tries it again.
const DefaultProviderCooldown = 60 * time.Second

// NewProviderChain builds a chain over the given providers, first to last.
// A non-positive cooldown falls back to DefaultProviderCooldown.
func NewProviderChain(cooldown time.Duration, providers ...ChainProvider) (*ProviderChain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("provider chain requires at least one provider")
	}
	for _, p := range providers {
		if p.Name == "" || p.Client == nil {
			return nil, fmt.Errorf("provider chain entries need a name and a client")
		}
	}
	if cooldown <= 0 {
		cooldown = DefaultProviderCooldown
	}
	return &ProviderChain{
		providers: providers,
		cooldown:  cooldown,
		benched:   make(map[string]time.Time),
		now:       time.Now,
	}, nil
}

// Generate walks the chain until a backend succeeds or fails permanently.
// If every backend is benched or failed transiently, the joined transient
// errors are returned so the caller can surface a capability outage.
func (c *ProviderChain) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	var transientErrs []error
	for _, p := range c.providers {
		if until, ok := c.benchedUntil(p.Name); ok {
			slog.Debug("Skipping benched provider", "provider", p.Name, "until", until)
			transientErrs = append(transientErrs, fmt.Errorf("provider %q benched until %s", p.Name, until.Format(time.RFC3339)))
			continue
		}

		result, err := p.Client.Generate(ctx, prompt, params)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !IsTransient(err) {
			return "", err
		}

		c.bench(p.Name)
		slog.Warn("Provider failed transiently, failing over", "provider", p.Name, "error", err)
		transientErrs = append(transientErrs, err)
	}
	return "", &TransientError{
		Provider: "chain",
		Err:      fmt.Errorf("all providers unavailable: %w", errors.Join(transientErrs...)),
	}
}

func (c *ProviderChain) benchedUntil(name string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.benched[name]
	if !ok {
		return time.Time{}, false
	}
	if c.now().After(until) {
		delete(c.benched, name)
		return time.Time{}, false
	}
	return until, true
}

func (c *ProviderChain) bench(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.benched[name] = c.now().Add(c.cooldown)
}
