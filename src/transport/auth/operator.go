// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package auth authenticates and authorizes operators calling the key wrap
// service.
package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Operator is a caller allowed to use a subset of the service methods.
type Operator struct {
	// ID is sent by the client in the `operator_id` metadata entry.
	ID string `yaml:"id"`
	// TokenHash is the bcrypt hash of the operator's bearer token.
	TokenHash string `yaml:"token_hash"`
	// Methods lists the RPC method names the operator may call.
	Methods []string `yaml:"methods"`
}

// HashToken returns the bcrypt hash to store in `Operator.TokenHash`.
func HashToken(token string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %v", err)
	}
	return string(h), nil
}

func (op *Operator) clone() *Operator {
	return &Operator{
		ID:        op.ID,
		TokenHash: op.TokenHash,
		Methods:   append([]string(nil), op.Methods...),
	}
}

// Store holds the known operators in memory.
type Store struct {
	mutex     sync.RWMutex
	operators map[string]*Operator
}

// NewStore returns a store holding ops.
func NewStore(ops []Operator) (*Store, error) {
	s := &Store{operators: make(map[string]*Operator)}
	for i := range ops {
		if err := s.Save(&ops[i]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Save adds op. Saving an ID twice fails.
func (s *Store) Save(op *Operator) error {
	if op.ID == "" {
		return status.Errorf(codes.InvalidArgument, "empty operator id")
	}
	if _, err := bcrypt.Cost([]byte(op.TokenHash)); err != nil {
		return status.Errorf(codes.InvalidArgument, "operator %q: invalid token hash: %v", op.ID, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.operators[op.ID] != nil {
		return status.Errorf(codes.AlreadyExists, "operator %q already exists", op.ID)
	}
	s.operators[op.ID] = op.clone()
	return nil
}

// Delete removes the operator with the given ID, if any.
func (s *Store) Delete(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.operators, id)
}

// Find returns a copy of the operator with the given ID.
func (s *Store) Find(id string) (*Operator, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	op := s.operators[id]
	if op == nil {
		return nil, status.Errorf(codes.Unauthenticated, "unknown operator %q", id)
	}
	return op.clone(), nil
}
