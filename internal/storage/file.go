// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftapp/driftchat/internal/util"
)

// =============================================================================
// FILE KV DRIVER
// =============================================================================

// FileKV stores each key as one JSON file under a base directory.
// Writes are atomic (temp file + fsync + rename) so a crash never leaves a
// partially written conversation behind.
type FileKV struct {
	baseDir string
}

// NewFileKV creates a file-backed KV rooted at baseDir.
func NewFileKV(baseDir string) (*FileKV, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	return &FileKV{baseDir: baseDir}, nil
}

// Get returns the blob stored for key, or ErrKeyNotFound.
func (s *FileKV) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put stores the blob for key, replacing any previous value.
func (s *FileKV) Put(key string, value []byte) error {
	return util.AtomicWriteFile(s.filePath(key), value, 0o644)
}

// Delete removes the blob for key. Deleting an absent key is not an error.
func (s *FileKV) Delete(key string) error {
	err := os.Remove(s.filePath(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file driver.
func (s *FileKV) Close() error {
	return nil
}

// filePath maps a key to a file name. Keys may contain characters that are
// unsafe in file names (":" on Windows), so anything outside a small safe
// set is hex-escaped.
func (s *FileKV) filePath(key string) string {
	return filepath.Join(s.baseDir, encodeKey(key)+".json")
}

func encodeKey(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('%')
			sb.WriteString(hex.EncodeToString([]byte(string(r))))
		}
	}
	return sb.String()
}
