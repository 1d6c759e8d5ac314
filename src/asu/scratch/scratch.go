// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package scratch provides the process-wide scratch arena shared by the RSA
// padding and key wrap operations.
//
// Only one operation may hold the arena at a time. The Pool hands it out as
// an exclusive handle; holders must zeroize what they used before releasing
// it, and the release function zeroizes the whole arena once more and
// reports whether that worked.
package scratch

import (
	"context"
	"unsafe"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
)

const (
	// MaxDBLen is the longest OAEP/PSS data block: a 4096-bit modulus with
	// the shortest digest.
	MaxDBLen = engine.MaxKeySize - 32 - 1

	// MsgBlockLen holds the PSS message M' = 0^8 || mHash || salt.
	MsgBlockLen = 8 + 2*engine.MaxHashLen

	// KWPMaxLen is the largest AES-KWP block handled.
	KWPMaxLen = 520

	maxAESKeyLen = 32
)

// Arena is the scratch memory of a single operation. All regions are fixed
// size so nothing secret is ever allocated on the heap by the operations.
type Arena struct {
	DataBlock  [MaxDBLen]byte
	MaskedDB   [MaxDBLen]byte
	Seed       [engine.MaxHashLen]byte
	MaskedSeed [engine.MaxHashLen]byte
	MsgBlock   [MsgBlockLen]byte
	Hash       [engine.MaxHashLen]byte
	HashCmp    [engine.MaxHashLen]byte
	EM         [engine.MaxKeySize]byte

	KWP    [KWPMaxLen]byte
	KWPOut [KWPMaxLen]byte
	AESIn  [engine.AESBlockSize]byte
	AESOut [engine.AESBlockSize]byte
	AESKey [maxAESKeyLen]byte
}

// Zeroize clears every region of the arena.
func (a *Arena) Zeroize() error {
	return fih.Zeroize(a.bytes())
}

// bytes returns the arena as a single byte slice.
func (a *Arena) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(a)), unsafe.Sizeof(*a))
}

// zeroizeArena is replaced in tests.
var zeroizeArena = (*Arena).Zeroize

// Pool hands out the single arena. See `Acquire`.
type Pool struct {
	arena  *Arena
	q      chan *Arena
	locked bool
}

// NewPool allocates the arena and tries to lock it in memory. Locking is best
// effort; `Locked` reports whether it succeeded.
func NewPool() *Pool {
	a := new(Arena)
	p := &Pool{
		arena: a,
		q:     make(chan *Arena, 1),
	}
	p.locked = lock(a.bytes()) == nil
	p.q <- a
	return p
}

// Locked reports whether the arena is locked in memory.
func (p *Pool) Locked() bool {
	return p.locked
}

// Acquire blocks until the arena is free or ctx is done. The arena goes back
// to the pool on release even when zeroizing it fails; the failure is the
// release error. Recommended use:
//
//	arena, release, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer func() {
//		err = errcode.Update(err, release())
//	}()
func (p *Pool) Acquire(ctx context.Context) (*Arena, func() error, error) {
	select {
	case a := <-p.q:
		release := func() error {
			err := zeroizeArena(a)
			p.q <- a
			return err
		}
		return a, release, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Close zeroizes and unlocks the arena. The pool must not be used afterwards.
func (p *Pool) Close() error {
	if err := p.arena.Zeroize(); err != nil {
		return err
	}
	if p.locked {
		p.locked = false
		return unlock(p.arena.bytes())
	}
	return nil
}
