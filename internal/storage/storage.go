package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNotFound = errors.New("key not found")

// Store is a small key-value abstraction for cached records.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = append([]byte(nil), value...)
	return nil
}

// FileStore keeps all keys in one JSON document on disk. Writes go through a
// temp file and a rename so readers never see a partial document.
type FileStore struct {
	mu       sync.RWMutex
	items    map[string]json.RawMessage
	filename string
}

func NewFileStore(filename string) (*FileStore, error) {
	fs := &FileStore{
		items:    make(map[string]json.RawMessage),
		filename: filename,
	}

	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", filename, err)
	}

	return fs, nil
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	value, ok := fs.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Put stores value under key. value must be valid JSON.
func (fs *FileStore) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.items[key] = append(json.RawMessage(nil), value...)
	return fs.save()
}

func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.items, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(fs.filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmpFile := fs.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, fs.filename)
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &fs.items)
}
