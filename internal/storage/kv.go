// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "errors"

// ErrKeyNotFound is returned by KV.Get for absent keys.
// Use errors.Is(err, ErrKeyNotFound) to check for it.
var ErrKeyNotFound = errors.New("key not found")

// KV is a string-keyed blob store. Writes to distinct keys are
// independent; drivers must not require cross-key locking.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// =============================================================================
// STORAGE ERROR
// =============================================================================

// StorageError wraps a serialization or I/O failure with the operation and
// key it happened on.
type StorageError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return "storage " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps a non-nil err with its operation and key.
func storageErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
