// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads engine configuration from a YAML file with
// environment overrides, and can watch the file for live changes.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianRefine/services/engine/datatypes"
)

// Config is the full engine configuration.
type Config struct {
	Server struct {
		Port        string `yaml:"port"`
		MetricsPath string `yaml:"metrics_path"`
	} `yaml:"server"`

	LLM struct {
		OllamaURL        string        `yaml:"ollama_url"`
		OllamaModel      string        `yaml:"ollama_model"`
		UseOpenAI        bool          `yaml:"use_openai"`
		ProviderCooldown time.Duration `yaml:"provider_cooldown"`
	} `yaml:"llm"`

	Weaviate struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Scheme  string `yaml:"scheme"`
		Class   string `yaml:"class"`
	} `yaml:"weaviate"`

	Memory struct {
		Path          string        `yaml:"path"`
		RetentionAge  time.Duration `yaml:"retention_age"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"memory"`

	Budget datatypes.Budget `yaml:"budget"`

	Tracing struct {
		Enabled  bool   `yaml:"enabled"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"tracing"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "9180"
	cfg.Server.MetricsPath = "/metrics"
	cfg.LLM.OllamaURL = "http://localhost:11434"
	cfg.LLM.OllamaModel = "qwen2.5:14b"
	cfg.LLM.ProviderCooldown = 60 * time.Second
	cfg.Weaviate.Host = "localhost:8080"
	cfg.Weaviate.Scheme = "http"
	cfg.Weaviate.Class = "Document"
	cfg.Memory.Path = defaultMemoryPath()
	cfg.Memory.RetentionAge = 30 * 24 * time.Hour
	cfg.Memory.SweepInterval = 12 * time.Hour
	cfg.Budget = datatypes.DefaultBudget()
	return cfg
}

func defaultMemoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aleutian-refine/memory"
	}
	return home + "/.aleutian-refine/memory"
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// applyEnv lets deployment environments override the file.
func applyEnv(cfg *Config) {
	if port := os.Getenv("REFINE_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.LLM.OllamaURL = url
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.LLM.OllamaModel = model
	}
	if host := os.Getenv("WEAVIATE_HOST"); host != "" {
		cfg.Weaviate.Host = host
		cfg.Weaviate.Enabled = true
	}
	if path := os.Getenv("REFINE_MEMORY_PATH"); path != "" {
		cfg.Memory.Path = path
	}
	if raw := os.Getenv("REFINE_MAX_ITERATIONS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Budget.MaxIterations = n
		} else {
			slog.Warn("Ignoring invalid REFINE_MAX_ITERATIONS", "value", raw)
		}
	}
	if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = endpoint
	}
}

// normalize backfills zero values users are likely to omit.
func normalize(cfg *Config) {
	if cfg.Budget.MaxIterations <= 0 {
		slog.Warn("max_iterations not set, using default", "default", datatypes.DefaultMaxIterations)
		cfg.Budget.MaxIterations = datatypes.DefaultMaxIterations
	}
	if cfg.Budget.MaxCorrectionRetries <= 0 {
		cfg.Budget.MaxCorrectionRetries = datatypes.DefaultMaxCorrectionRetries
	}
	if cfg.LLM.ProviderCooldown <= 0 {
		cfg.LLM.ProviderCooldown = 60 * time.Second
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
}

// Watcher re-reads the config file when it changes on disk, with a
// debounce window so editors that write in bursts trigger one reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path and calls onChange with each successfully
// reloaded configuration. Unparseable intermediate states are logged
// and skipped; the previous configuration stays active.
func Watch(path string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch config %s: %w", path, err)
	}

	w := &Watcher{watcher: fsw, done: make(chan struct{})}
	go w.loop(path, onChange)
	return w, nil
}

func (w *Watcher) loop(path string, onChange func(Config)) {
	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerCh = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		case <-timerCh:
			timerCh = nil
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("Config reload failed, keeping previous configuration", "error", err)
				continue
			}
			slog.Info("Config reloaded", "path", path)
			onChange(cfg)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
