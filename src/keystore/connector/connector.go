// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package connector implements a database connector interface.
package connector

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by Get when no value is stored under the key.
var ErrNotFound = errors.New("record not found")

// Connector implements a connection to the database.
type Connector interface {
	// Insert a `key` `value` pair to the database. A later insert with the
	// same key replaces the value.
	// It should respect context cancellation and timeout.
	Insert(ctx context.Context, key string, value []byte) error

	// Get returns a value associated with a given `key`.
	// It should respect context cancellation and timeout.
	Get(ctx context.Context, key string) ([]byte, error)
}
