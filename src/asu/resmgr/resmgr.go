// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package resmgr arbitrates exclusive access to the shared crypto engines.
package resmgr

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// Resource identifies a shared engine.
type Resource int

const (
	DMA Resource = iota
	AES
	SHA
	RSA
	TRNG

	numResources
)

// All lists every resource in allocation order.
var All = []Resource{DMA, AES, SHA, RSA, TRNG}

func (r Resource) String() string {
	switch r {
	case DMA:
		return "DMA"
	case AES:
		return "AES"
	case SHA:
		return "SHA"
	case RSA:
		return "RSA"
	case TRNG:
		return "TRNG"
	}
	return fmt.Sprintf("Resource(%d)", int(r))
}

// Manager grants resources to requesters. Resources are always taken in
// ascending order so two requesters can never deadlock each other.
type Manager struct {
	sems   [numResources]*semaphore.Weighted
	owners [numResources]*atomic.String
}

// New returns a manager with every resource free.
func New() *Manager {
	m := &Manager{}
	for i := range m.sems {
		m.sems[i] = semaphore.NewWeighted(1)
		m.owners[i] = atomic.NewString("")
	}
	return m
}

// Allocate blocks until requester owns every resource in ids, or ctx is done.
// The returned function releases them; calling it more than once is safe.
func (m *Manager) Allocate(ctx context.Context, requester string, ids ...Resource) (func(), error) {
	if requester == "" {
		return nil, errcode.Errorf(errcode.InvalidParam, "empty requester")
	}
	order, err := normalize(ids)
	if err != nil {
		return nil, err
	}

	held := make([]Resource, 0, len(order))
	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.owners[held[i]].Store("")
			m.sems[held[i]].Release(1)
		}
	}
	for _, id := range order {
		if err := m.sems[id].Acquire(ctx, 1); err != nil {
			releaseHeld()
			return nil, errcode.Wrap(errcode.ResourceBusy, fmt.Errorf("%v: %w", id, err))
		}
		m.owners[id].Store(requester)
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

// Owner returns the requester holding id, or "" when it is free.
func (m *Manager) Owner(id Resource) string {
	if id < 0 || id >= numResources {
		return ""
	}
	return m.owners[id].Load()
}

// normalize sorts ids and drops duplicates.
func normalize(ids []Resource) ([]Resource, error) {
	if len(ids) == 0 {
		return nil, errcode.Errorf(errcode.InvalidParam, "no resources requested")
	}
	order := append([]Resource(nil), ids...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Resource, 0, len(order))
	for _, id := range order {
		if id < 0 || id >= numResources {
			return nil, errcode.Errorf(errcode.InvalidParam, "unknown resource %v", id)
		}
		if len(out) > 0 && out[len(out)-1] == id {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
