// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory persists session turns in an embedded BadgerDB store,
// keyed by a deterministic identity fingerprint.
//
// Key layout:
//
//	session/<fingerprint>        session metadata (JSON)
//	turn/<fingerprint>/<seq>     one turn (JSON), seq zero-padded so
//	                             lexicographic key order is chronological
//	seq/<fingerprint>            next sequence number (big-endian uint64)
//
// Sessions are partitioned by fingerprint, so independent request
// pipelines never contend on the same keys.
package memory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.refine.memory")

// Role identifies which side of the exchange produced a turn.
type Role string

const (
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
)

// Session is the metadata record for one fingerprinted identity set.
type Session struct {
	Fingerprint string    `json:"fingerprint"`
	IdentitySet []string  `json:"identity_set"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Turn is one appended exchange entry. Turns are append-only and owned
// exclusively by this package.
type Turn struct {
	SessionFingerprint string    `json:"session_fingerprint"`
	Role               Role      `json:"role"`
	Content            string    `json:"content"`
	Timestamp          time.Time `json:"timestamp"`
}

// Config holds configuration for the store's BadgerDB instance.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory disables disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and
// five-minute GC sweeps.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the session memory store. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
}

// Open creates the store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the underlying database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	if ratio <= 0 {
		ratio = 0.5
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(ratio); err != nil {
					break
				}
			}
		}
	}
}

// =============================================================================
// Key Helpers
// =============================================================================

func sessionKey(fp string) []byte { return []byte("session/" + fp) }
func seqKey(fp string) []byte     { return []byte("seq/" + fp) }
func turnPrefix(fp string) []byte { return []byte("turn/" + fp + "/") }

func turnKey(fp string, seq uint64) []byte {
	return []byte(fmt.Sprintf("turn/%s/%012d", fp, seq))
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// GetOrCreateSession resolves the identity set to a fingerprint,
// creating the session record on first contact and bumping its
// updated-at timestamp otherwise.
func (s *Store) GetOrCreateSession(ctx context.Context, identitySet []string) (string, error) {
	ctx, span := tracer.Start(ctx, "Store.GetOrCreateSession")
	defer span.End()

	fp := Fingerprint(identitySet)
	span.SetAttributes(attribute.String("session.fingerprint", fp))

	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(fp))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			sess := Session{
				Fingerprint: fp,
				IdentitySet: append([]string(nil), identitySet...),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			encoded, merr := json.Marshal(sess)
			if merr != nil {
				return merr
			}
			slog.Debug("Creating session", "fingerprint", fp, "identities", len(identitySet))
			return txn.Set(sessionKey(fp), encoded)
		case err != nil:
			return err
		default:
			var sess Session
			if verr := item.Value(func(val []byte) error { return json.Unmarshal(val, &sess) }); verr != nil {
				return verr
			}
			sess.UpdatedAt = now
			encoded, merr := json.Marshal(sess)
			if merr != nil {
				return merr
			}
			return txn.Set(sessionKey(fp), encoded)
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session upsert failed")
		return "", fmt.Errorf("get or create session: %w", err)
	}
	return fp, nil
}

// GetSession loads one session's metadata. Returns badger.ErrKeyNotFound
// wrapped when the fingerprint is unknown.
func (s *Store) GetSession(ctx context.Context, fp string) (Session, error) {
	var sess Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(fp))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &sess) })
	})
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", fp, err)
	}
	return sess, nil
}

// ListSessions returns every session's metadata, unordered.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("session/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sess Session
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &sess) }); err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Append writes one turn at the end of the session's log and bumps the
// session timestamp. Turns are never updated or reordered afterwards.
func (s *Store) Append(ctx context.Context, fp string, role Role, content string) error {
	ctx, span := tracer.Start(ctx, "Store.Append")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.fingerprint", fp),
		attribute.String("turn.role", string(role)),
	)

	now := time.Now().UTC()
	turn := Turn{
		SessionFingerprint: fp,
		Role:               role,
		Content:            content,
		Timestamp:          now,
	}
	encoded, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		seq, err := nextSeq(txn, fp)
		if err != nil {
			return err
		}
		if err := txn.Set(turnKey(fp, seq), encoded); err != nil {
			return err
		}
		return touchSession(txn, fp, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func nextSeq(txn *badger.Txn, fp string) (uint64, error) {
	var seq uint64
	item, err := txn.Get(seqKey(fp))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		seq = 0
	case err != nil:
		return 0, err
	default:
		if verr := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt sequence value for %s", fp)
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); verr != nil {
			return 0, verr
		}
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, seq+1)
	if err := txn.Set(seqKey(fp), next); err != nil {
		return 0, err
	}
	return seq, nil
}

func touchSession(txn *badger.Txn, fp string, now time.Time) error {
	item, err := txn.Get(sessionKey(fp))
	if errors.Is(err, badger.ErrKeyNotFound) {
		// Append before GetOrCreateSession. Tolerated: synthesize the
		// session record so the retention sweep can still see it.
		sess := Session{Fingerprint: fp, CreatedAt: now, UpdatedAt: now}
		encoded, merr := json.Marshal(sess)
		if merr != nil {
			return merr
		}
		return txn.Set(sessionKey(fp), encoded)
	}
	if err != nil {
		return err
	}
	var sess Session
	if verr := item.Value(func(val []byte) error { return json.Unmarshal(val, &sess) }); verr != nil {
		return verr
	}
	sess.UpdatedAt = now
	encoded, merr := json.Marshal(sess)
	if merr != nil {
		return merr
	}
	return txn.Set(sessionKey(fp), encoded)
}

// History returns the full chronological log for a session.
func (s *Store) History(ctx context.Context, fp string) ([]Turn, error) {
	if _, err := s.GetSession(ctx, fp); err != nil {
		return nil, err
	}
	return s.allTurns(fp)
}

// allTurns loads the full chronological log for a session.
func (s *Store) allTurns(fp string) ([]Turn, error) {
	var turns []Turn
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := turnPrefix(fp)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var turn Turn
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &turn) }); err != nil {
				return err
			}
			turns = append(turns, turn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", fp, err)
	}
	return turns, nil
}

// =============================================================================
// Retention Sweep
// =============================================================================

// SweepExpired deletes sessions whose last update is older than maxAge,
// along with their turns and sequence counters. This is the only
// deletion path in the store. Returns how many sessions were removed.
func (s *Store) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "Store.SweepExpired")
	defer span.End()

	cutoff := time.Now().UTC().Add(-maxAge)
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	deleted := 0
	for _, sess := range sessions {
		if !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.deleteSession(sess.Fingerprint); err != nil {
			span.RecordError(err)
			return deleted, err
		}
		slog.Info("Swept expired session",
			"fingerprint", sess.Fingerprint,
			"last_update", sess.UpdatedAt.Format(time.RFC3339))
		deleted++
	}
	span.SetAttributes(attribute.Int("sweep.deleted", deleted))
	return deleted, nil
}

// DeleteSession removes one session and its turns regardless of age.
// Exposed for the admin API.
func (s *Store) DeleteSession(ctx context.Context, fp string) error {
	return s.deleteSession(fp)
}

func (s *Store) deleteSession(fp string) error {
	// Collect turn keys first; deleting while iterating the same
	// transaction's iterator is not safe.
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := turnPrefix(fp)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect turn keys for %s: %w", fp, err)
	}
	keys = append(keys, sessionKey(fp), seqKey(fp))

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("delete session %s: %w", fp, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush session delete %s: %w", fp, err)
	}
	return nil
}
