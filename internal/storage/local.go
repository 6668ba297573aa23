// Package storage provides the local persistence layer for client-side
// state. It mirrors browser localStorage semantics: whole JSON values
// stored synchronously under string keys, with no assumption of exclusive
// access (another process may rewrite a key between reads).
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNoValue = errors.New("no value stored under key")

// Local is a file-per-key JSON store rooted at a single directory.
type Local struct {
	mu  sync.Mutex
	dir string
}

// NewLocal creates the backing directory if it does not exist.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

// Get reads the value stored under key into v.
// Returns ErrNoValue if the key has never been set or was deleted.
func (l *Local) Get(key string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoValue
		}
		return fmt.Errorf("failed to read key %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return nil
}

// Set replaces the value stored under key. The write is atomic: a reader
// never observes a partially written value.
func (l *Local) Set(key string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	tmp := l.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	if err := os.Rename(tmp, l.path(key)); err != nil {
		return fmt.Errorf("failed to replace key %q: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting an absent key is a no-op.
func (l *Local) Delete(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.dir, key+".json")
}
