// Package storage keeps the terminal client's session token between runs.
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

// FileStorage keeps the token in a JSON file readable only by the owner.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

type fileState struct {
	Token string `json:"token"`
}

// NewFileStorage returns a FileStorage backed by path. The file is created
// on the first save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// LoadToken returns the stored token, or "" when none is stored.
func (fs *FileStorage) LoadToken(_ context.Context) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	var st fileState
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return "", fmt.Errorf("decode %s: %w", fs.path, err)
	}
	return st.Token, nil
}

// SaveToken replaces the stored token. The file is written next to its
// final location and renamed so a crash never leaves it half-written.
func (fs *FileStorage) SaveToken(_ context.Context, token string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(fileState{Token: token}); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.path)
}

// ClearToken removes the stored token.
func (fs *FileStorage) ClearToken(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	err := os.Remove(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
