// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package soft

import (
	"crypto/aes"
	"crypto/cipher"
	"sync"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// AES emulates an AES engine with a bank of key slots.
type AES struct {
	mu    sync.Mutex
	slots [engine.NumKeySlots]cipher.Block
	keys  [engine.NumKeySlots][]byte
}

// NewAES returns an AES engine with every slot empty.
func NewAES() *AES {
	return &AES{}
}

// WriteKey loads key into slot, replacing any previous key.
func (a *AES) WriteKey(slot engine.KeySlot, key []byte) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.AesWriteKeyFailed, "invalid slot %d", slot)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return errcode.Wrap(errcode.AesWriteKeyFailed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.keys[slot])
	a.keys[slot] = append([]byte(nil), key...)
	a.slots[slot] = block
	return nil
}

// Compute runs AES-ECB over in.
func (a *AES) Compute(slot engine.KeySlot, op engine.AESOp, in, out []byte) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.InvalidParam, "invalid slot %d", slot)
	}
	if len(in) == 0 || len(in)%engine.AESBlockSize != 0 || len(out) < len(in) {
		return errcode.Errorf(errcode.InvalidParam, "bad ECB lengths in=%d out=%d", len(in), len(out))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	block := a.slots[slot]
	if block == nil {
		return errcode.Errorf(errcode.InvalidParam, "slot %d is empty", slot)
	}
	for i := 0; i < len(in); i += engine.AESBlockSize {
		switch op {
		case engine.AESEncrypt:
			block.Encrypt(out[i:i+engine.AESBlockSize], in[i:i+engine.AESBlockSize])
		case engine.AESDecrypt:
			block.Decrypt(out[i:i+engine.AESBlockSize], in[i:i+engine.AESBlockSize])
		default:
			return errcode.Errorf(errcode.InvalidParam, "unknown AES op %d", op)
		}
	}
	return nil
}

// KeyClear erases slot.
func (a *AES) KeyClear(slot engine.KeySlot) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.KeywrapAesKeyClearFail, "invalid slot %d", slot)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.keys[slot])
	a.keys[slot] = nil
	a.slots[slot] = nil
	return nil
}

// Loaded reports whether slot holds a key.
func (a *AES) Loaded(slot engine.KeySlot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slot.Valid() && a.slots[slot] != nil
}
