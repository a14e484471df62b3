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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	calls  int
	result string
	err    error
}

func (f *fakeClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func TestProviderChainFirstProviderWins(t *testing.T) {
	primary := &fakeClient{result: "from primary"}
	backup := &fakeClient{result: "from backup"}
	chain, err := NewProviderChain(0,
		ChainProvider{Name: "primary", Client: primary},
		ChainProvider{Name: "backup", Client: backup},
	)
	require.NoError(t, err)

	got, err := chain.Generate(context.Background(), "hello", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "from primary", got)
	assert.Equal(t, 0, backup.calls)
}

func TestProviderChainFailsOverOnTransient(t *testing.T) {
	primary := &fakeClient{err: &TransientError{Provider: "primary", Err: errors.New("429")}}
	backup := &fakeClient{result: "from backup"}
	chain, err := NewProviderChain(0,
		ChainProvider{Name: "primary", Client: primary},
		ChainProvider{Name: "backup", Client: backup},
	)
	require.NoError(t, err)

	got, err := chain.Generate(context.Background(), "hello", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", got)
	assert.Equal(t, 1, primary.calls)
}

func TestProviderChainStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("model not found")
	primary := &fakeClient{err: permanent}
	backup := &fakeClient{result: "from backup"}
	chain, err := NewProviderChain(0,
		ChainProvider{Name: "primary", Client: primary},
		ChainProvider{Name: "backup", Client: backup},
	)
	require.NoError(t, err)

	_, err = chain.Generate(context.Background(), "hello", GenerationParams{})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 0, backup.calls)
}

func TestProviderChainBenchesFailedProvider(t *testing.T) {
	primary := &fakeClient{err: &TransientError{Provider: "primary", Err: errors.New("quota")}}
	backup := &fakeClient{result: "ok"}
	chain, err := NewProviderChain(time.Minute,
		ChainProvider{Name: "primary", Client: primary},
		ChainProvider{Name: "backup", Client: backup},
	)
	require.NoError(t, err)

	now := time.Now()
	chain.now = func() time.Time { return now }

	_, err = chain.Generate(context.Background(), "first", GenerationParams{})
	require.NoError(t, err)
	_, err = chain.Generate(context.Background(), "second", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, primary.calls, "benched provider should not be retried inside the cooldown")

	// After the cooldown the primary gets another chance.
	chain.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = chain.Generate(context.Background(), "third", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, primary.calls)
}

func TestProviderChainAllTransient(t *testing.T) {
	primary := &fakeClient{err: &TransientError{Provider: "primary", Err: errors.New("quota")}}
	backup := &fakeClient{err: &TransientError{Provider: "backup", Err: errors.New("timeout")}}
	chain, err := NewProviderChain(0,
		ChainProvider{Name: "primary", Client: primary},
		ChainProvider{Name: "backup", Client: backup},
	)
	require.NoError(t, err)

	_, err = chain.Generate(context.Background(), "hello", GenerationParams{})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestNewProviderChainRejectsEmpty(t *testing.T) {
	_, err := NewProviderChain(0)
	require.Error(t, err)
}
