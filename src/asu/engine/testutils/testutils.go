// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package testutils wraps engine sets with call counters and fault injection
// for tests.
package testutils

import (
	"sync"
	"testing"

	"go.uber.org/atomic"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
)

// Op names a single engine entry point.
type Op string

const (
	RSAPublic  Op = "rsa.public"
	RSAPrivate Op = "rsa.private"
	AESWrite   Op = "aes.write"
	AESCompute Op = "aes.compute"
	AESClear   Op = "aes.clear"
	SHADigest  Op = "sha.digest"
	TRNGRandom Op = "trng.random"
	DMACopy    Op = "dma.transfer"
)

var allOps = []Op{RSAPublic, RSAPrivate, AESWrite, AESCompute, AESClear, SHADigest, TRNGRandom, DMACopy}

type fault struct {
	// nth is the 1-based call that fails; 0 fails every call.
	nth int64
	err error
}

// Recorder counts engine calls and injects faults.
type Recorder struct {
	inner engine.Set

	calls map[Op]*atomic.Int64

	mu     sync.Mutex
	faults map[Op]fault
}

// NewRecorder wraps inner.
func NewRecorder(inner engine.Set) *Recorder {
	r := &Recorder{
		inner:  inner,
		calls:  make(map[Op]*atomic.Int64, len(allOps)),
		faults: map[Op]fault{},
	}
	for _, op := range allOps {
		r.calls[op] = atomic.NewInt64(0)
	}
	return r
}

// Set returns the wrapped engines.
func (r *Recorder) Set() engine.Set {
	return engine.Set{
		RSA:  &rsaRec{r},
		AES:  &aesRec{r},
		SHA:  &shaRec{r},
		TRNG: &trngRec{r},
		DMA:  &dmaRec{r},
	}
}

// FailOn makes the nth call of op return err. nth 0 fails every call.
func (r *Recorder) FailOn(op Op, nth int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults[op] = fault{nth: int64(nth), err: err}
}

// Calls returns how often op was called.
func (r *Recorder) Calls(op Op) int {
	return int(r.calls[op].Load())
}

// Total returns the number of engine calls of any kind.
func (r *Recorder) Total() int {
	n := 0
	for _, op := range allOps {
		n += r.Calls(op)
	}
	return n
}

// Reset zeroes the counters and removes all faults.
func (r *Recorder) Reset() {
	for _, op := range allOps {
		r.calls[op].Store(0)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = map[Op]fault{}
}

// enter counts a call and returns the fault to inject, if any.
func (r *Recorder) enter(op Op) error {
	n := r.calls[op].Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.faults[op]
	if !ok {
		return nil
	}
	if f.nth == 0 || f.nth == n {
		return f.err
	}
	return nil
}

type rsaRec struct{ r *Recorder }

func (e *rsaRec) PublicExp(in, out []byte, key *engine.RSAPublicKey) error {
	if err := e.r.enter(RSAPublic); err != nil {
		return err
	}
	return e.r.inner.RSA.PublicExp(in, out, key)
}

func (e *rsaRec) PrivateExp(in, out []byte, key *engine.RSAPrivateKey) error {
	if err := e.r.enter(RSAPrivate); err != nil {
		return err
	}
	return e.r.inner.RSA.PrivateExp(in, out, key)
}

type aesRec struct{ r *Recorder }

func (e *aesRec) WriteKey(slot engine.KeySlot, key []byte) error {
	if err := e.r.enter(AESWrite); err != nil {
		return err
	}
	return e.r.inner.AES.WriteKey(slot, key)
}

func (e *aesRec) Compute(slot engine.KeySlot, op engine.AESOp, in, out []byte) error {
	if err := e.r.enter(AESCompute); err != nil {
		return err
	}
	return e.r.inner.AES.Compute(slot, op, in, out)
}

func (e *aesRec) KeyClear(slot engine.KeySlot) error {
	// The slot is always cleared so a failing clear never leaks a key
	// into the next test.
	err := e.r.enter(AESClear)
	if ierr := e.r.inner.AES.KeyClear(slot); err == nil {
		err = ierr
	}
	return err
}

type shaRec struct{ r *Recorder }

func (e *shaRec) Digest(mode engine.HashMode, data, out []byte) error {
	if err := e.r.enter(SHADigest); err != nil {
		return err
	}
	return e.r.inner.SHA.Digest(mode, data, out)
}

type trngRec struct{ r *Recorder }

func (e *trngRec) GetRandomNumbers(buf []byte) error {
	if err := e.r.enter(TRNGRandom); err != nil {
		return err
	}
	return e.r.inner.TRNG.GetRandomNumbers(buf)
}

type dmaRec struct{ r *Recorder }

func (e *dmaRec) Transfer(dst, src []byte) error {
	if err := e.r.enter(DMACopy); err != nil {
		return err
	}
	return e.r.inner.DMA.Transfer(dst, src)
}

// FixedTRNG returns bytes from Stream in order, wrapping around. It makes
// randomized paddings reproducible.
type FixedTRNG struct {
	Stream []byte

	mu  sync.Mutex
	pos int
}

func (f *FixedTRNG) GetRandomNumbers(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range buf {
		buf[i] = f.Stream[f.pos%len(f.Stream)]
		f.pos++
	}
	return nil
}

// Check fails the test if err is not nil.
func Check(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
