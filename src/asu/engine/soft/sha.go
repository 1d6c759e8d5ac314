// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package soft

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// SHA is a digest engine. With a chunk size set, inputs longer than one chunk
// are absorbed one chunk per call.
type SHA struct {
	chunkSize int

	mu      sync.Mutex
	pending *pendingDigest
}

// digestKey identifies the input of a chunked digest. A call with a
// different mode, length or buffer starts over.
type digestKey struct {
	mode  engine.HashMode
	size  int
	first *byte
}

type pendingDigest struct {
	key    digestKey
	h      hash.Hash
	offset int
}

// MinChunkSize is the smallest accepted chunk size. Every block the padding
// code digests from its own scratch memory is shorter, so only caller data,
// which stays put across re-invocations, is ever chunked.
const MinChunkSize = 1024

// NewSHA returns a digest engine. chunkSize 0 digests every input at once;
// other values are raised to MinChunkSize.
func NewSHA(chunkSize int) *SHA {
	if chunkSize > 0 && chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	return &SHA{chunkSize: chunkSize}
}

func newHash(mode engine.HashMode) hash.Hash {
	switch mode {
	case engine.SHA2_256:
		return sha256.New()
	case engine.SHA2_384:
		return sha512.New384()
	case engine.SHA2_512:
		return sha512.New()
	case engine.SHA3_256:
		return sha3.New256()
	case engine.SHA3_384:
		return sha3.New384()
	case engine.SHA3_512:
		return sha3.New512()
	}
	return nil
}

// Digest hashes data into out.
func (s *SHA) Digest(mode engine.HashMode, data, out []byte) error {
	h := newHash(mode)
	if h == nil {
		return errcode.Errorf(errcode.InvalidHashMode, "unsupported hash mode %v", mode)
	}
	if len(out) < mode.Size() {
		return errcode.Errorf(errcode.DigestCalcFail, "digest buffer %d, want %d", len(out), mode.Size())
	}
	if s.chunkSize <= 0 || len(data) <= s.chunkSize {
		h.Write(data)
		h.Sum(out[:0])
		return nil
	}

	key := digestKey{mode: mode, size: len(data), first: &data[0]}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.key != key {
		s.pending = &pendingDigest{key: key, h: h}
	}
	p := s.pending
	end := p.offset + s.chunkSize
	if end > len(data) {
		end = len(data)
	}
	p.h.Write(data[p.offset:end])
	p.offset = end
	if p.offset < len(data) {
		return errcode.New(errcode.CmdInProgress)
	}
	p.h.Sum(out[:0])
	s.pending = nil
	return nil
}
