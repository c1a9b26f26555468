// Package tokenstore persists the session token between client runs.
package tokenstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// TokenKey is the single key the session token lives under.
const TokenKey = "auth_token"

// Store is a small key-value store for the session token.
type Store interface {
	// Get returns the stored token, or "" when none is stored.
	Get() (string, error)
	Set(token string) error
	Clear() error
}

// Memory keeps the token in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *Memory) Set(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear() error {
	return m.Set("")
}

// File keeps the token in a YAML document readable only by the owner.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by path. The file is created on first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultPath is <user config dir>/vibely/credentials.yml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "vibely", "credentials.yml"), nil
}

// Path returns the backing file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	return values[TokenKey], nil
}

func (f *File) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[TokenKey] = token
	return f.write(values)
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := values[TokenKey]; !ok {
		return nil
	}
	delete(values, TokenKey)
	return f.write(values)
}

func (f *File) read() (map[string]string, error) {
	values := map[string]string{}
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token store: %w", err)
	}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode token store %s: %w", f.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

func (f *File) write(values map[string]string) error {
	raw, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file behind.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write token store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token store: %w", err)
	}
	return nil
}
