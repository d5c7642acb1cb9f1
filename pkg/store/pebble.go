// Package store persists the daemon's state in a single embedded Pebble
// database: pins, per-thread message histories, the outbound queue,
// contacts and the local identity. Every mutation is written with
// pebble.Sync so a crash never loses an acknowledged write.
package store

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"

	"zerozero/pkg/logger"
)

// Store owns the Pebble handle. Registries (Pins, Threads, Queue,
// Contacts) are constructed over one Store and passed explicitly to the
// daemon's components; there is no package-level singleton.
type Store struct {
	db   *pebble.DB
	path string
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	logger.Info("opening_store", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("store_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database. Safe to call on a nil or already-closed
// store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	logger.Info("store_closed", "path", s.path)
	return err
}

// Ready reports whether the store is open.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

// Path returns the on-disk location of the database.
func (s *Store) Path() string { return s.path }

func (s *Store) set(key string, val []byte) error {
	if !s.Ready() {
		return fmt.Errorf("store not opened")
	}
	if err := s.db.Set([]byte(key), val, pebble.Sync); err != nil {
		return fmt.Errorf("store set %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(key string) ([]byte, bool, error) {
	if !s.Ready() {
		return nil, false, fmt.Errorf("store not opened")
	}
	v, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get %s: %w", key, err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *Store) delete(key string) error {
	if !s.Ready() {
		return fmt.Errorf("store not opened")
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("store delete %s: %w", key, err)
	}
	return nil
}

// scanPrefix iterates all keys under prefix in key order. The callback
// receives stable copies it may retain.
func (s *Store) scanPrefix(prefix string, fn func(key string, val []byte) error) error {
	if !s.Ready() {
		return fmt.Errorf("store not opened")
	}
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p})
	if err != nil {
		return fmt.Errorf("store iter %s: %w", prefix, err)
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, p) {
			break
		}
		v := append([]byte(nil), iter.Value()...)
		if err := fn(string(k), v); err != nil {
			return err
		}
	}
	return iter.Error()
}

// deleteRange removes every key under prefix.
func (s *Store) deletePrefix(prefix string) error {
	keys := []string{}
	if err := s.scanPrefix(prefix, func(k string, _ []byte) error {
		keys = append(keys, k)
		return nil
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.delete(k); err != nil {
			return err
		}
	}
	return nil
}
