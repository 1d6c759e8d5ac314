// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package filedb implements a connector to a sqlite database.
package filedb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
)

type sqliteDB struct {
	db *gorm.DB

	// sqlite allows a single writer at a time.
	writeMutex sync.Mutex
}

// recordSchema represents the schema of the key record table.
type recordSchema struct {
	Key       string `gorm:"primarykey"`
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a sqlite connector with an initialized gorm.DB instance.
func New(dbPath string) (connector.Connector, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout = 5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	if err := db.AutoMigrate(&recordSchema{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}
	return &sqliteDB{db: db}, nil
}

// Insert adds a `key` `value` pair to the database. Multiple calls with the
// same key will succeed; the last value wins.
func (s *sqliteDB) Insert(ctx context.Context, key string, value []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	r := s.db.WithContext(ctx).Save(&recordSchema{Key: key, Value: value})
	if r.Error != nil {
		return fmt.Errorf("failed to insert data with key: %q, error: %v", key, r.Error)
	}
	return nil
}

// Get gets the latest inserted value associated with a given `key`.
func (s *sqliteDB) Get(ctx context.Context, key string) ([]byte, error) {
	var rec recordSchema
	r := s.db.WithContext(ctx).First(&rec, "key = ?", key)
	if errors.Is(r.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("key %q: %w", key, connector.ErrNotFound)
	}
	if r.Error != nil {
		return nil, fmt.Errorf("failed to get data associated with key: %q, error: %v", key, r.Error)
	}
	return rec.Value, nil
}
