// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package db_fake implements an in-memory key store backend. It serves tests
// and the "memory" backend of the server.
package db_fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
)

// DB keeps every value ever inserted under a key; Get returns the newest.
type DB struct {
	mu      sync.RWMutex
	history map[string][][]byte
}

var _ connector.Connector = (*DB)(nil)

// New returns an empty database.
func New() *DB {
	return &DB{history: map[string][][]byte{}}
}

// Insert appends value to the history of key.
func (d *DB) Insert(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history[key] = append(d.history[key], append([]byte(nil), value...))
	return nil
}

// Get returns a copy of the newest value stored under key.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	h := d.history[key]
	if len(h) == 0 {
		return nil, fmt.Errorf("key %q: %w", key, connector.ErrNotFound)
	}
	return append([]byte(nil), h[len(h)-1]...), nil
}

// Versions reports how many times key has been written.
func (d *DB) Versions(key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.history[key])
}
