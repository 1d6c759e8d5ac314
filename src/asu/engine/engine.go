// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the call boundary between the padding and key wrap
// code and the crypto engines it drives: RSA exponentiation, AES key slots,
// digests, random numbers and DMA transfers.
package engine

import (
	"crypto"
	"fmt"
	"strings"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// HashMode selects the digest algorithm used by the digest engine.
type HashMode int

const (
	HashModeUnknown HashMode = iota
	SHA2_256
	SHA2_384
	SHA2_512
	SHA3_256
	SHA3_384
	SHA3_512
)

// MaxHashLen is the largest digest produced by any supported mode.
const MaxHashLen = 64

var hashModeNames = map[HashMode]string{
	SHA2_256: "sha2-256",
	SHA2_384: "sha2-384",
	SHA2_512: "sha2-512",
	SHA3_256: "sha3-256",
	SHA3_384: "sha3-384",
	SHA3_512: "sha3-512",
}

// Size returns the digest length in bytes, or 0 for an unknown mode.
func (m HashMode) Size() int {
	switch m {
	case SHA2_256, SHA3_256:
		return 32
	case SHA2_384, SHA3_384:
		return 48
	case SHA2_512, SHA3_512:
		return 64
	}
	return 0
}

// Valid reports whether m is a supported mode.
func (m HashMode) Valid() bool {
	return m.Size() != 0
}

// Crypto returns the crypto.Hash matching m.
func (m HashMode) Crypto() crypto.Hash {
	switch m {
	case SHA2_256:
		return crypto.SHA256
	case SHA2_384:
		return crypto.SHA384
	case SHA2_512:
		return crypto.SHA512
	case SHA3_256:
		return crypto.SHA3_256
	case SHA3_384:
		return crypto.SHA3_384
	case SHA3_512:
		return crypto.SHA3_512
	}
	return 0
}

func (m HashMode) String() string {
	if n, ok := hashModeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("HashMode(%d)", int(m))
}

// ParseHashMode parses names such as "sha2-256" or "SHA3_512".
func ParseHashMode(s string) (HashMode, error) {
	norm := strings.ReplaceAll(strings.ToLower(s), "_", "-")
	for m, n := range hashModeNames {
		if n == norm {
			return m, nil
		}
	}
	return HashModeUnknown, errcode.Errorf(errcode.InvalidHashMode, "unknown hash mode %q", s)
}

// Supported RSA key sizes, in bytes.
const (
	KeySize2048 = 256
	KeySize3072 = 384
	KeySize4096 = 512

	MaxKeySize = KeySize4096
)

// ValidKeySize reports whether k is a supported RSA key size in bytes.
func ValidKeySize(k int) bool {
	return k == KeySize2048 || k == KeySize3072 || k == KeySize4096
}

// KeySlot names an AES engine key slot.
type KeySlot int

const (
	UserKey0 KeySlot = iota
	UserKey1
	UserKey2
	UserKey3
	UserKey4
	UserKey5
	UserKey6
	UserKey7

	NumKeySlots = int(UserKey7) + 1
)

// Valid reports whether s names an existing slot.
func (s KeySlot) Valid() bool {
	return s >= UserKey0 && s <= UserKey7
}

// AESKeySize is the length of an AES key in bytes.
type AESKeySize int

const (
	AES128 AESKeySize = 16
	AES256 AESKeySize = 32
)

// Valid reports whether s is a key size the key wrap code accepts.
func (s AESKeySize) Valid() bool {
	return s == AES128 || s == AES256
}

// AESBlockSize is the AES block length in bytes.
const AESBlockSize = 16

// AESOp selects the direction of an AES engine computation.
type AESOp int

const (
	AESEncrypt AESOp = iota
	AESDecrypt
)

// RSA performs raw modular exponentiation. in and out are both exactly as
// long as the key modulus.
type RSA interface {
	PublicExp(in, out []byte, key *RSAPublicKey) error
	PrivateExp(in, out []byte, key *RSAPrivateKey) error
}

// AES drives the AES engine in ECB mode with keys held in engine slots.
type AES interface {
	// WriteKey loads key into slot.
	WriteKey(slot KeySlot, key []byte) error
	// Compute runs op over the AES blocks of in, writing len(in) bytes to out.
	Compute(slot KeySlot, op AESOp, in, out []byte) error
	// KeyClear erases the key held in slot. Clearing an empty slot succeeds.
	KeyClear(slot KeySlot) error
}

// SHA computes digests. Digest writes mode.Size() bytes into out. An engine
// that digests long inputs in chunks returns errcode.CmdInProgress until the
// last chunk has been absorbed; the caller then repeats the same call.
type SHA interface {
	Digest(mode HashMode, data, out []byte) error
}

// TRNG fills buffers with random bytes.
type TRNG interface {
	GetRandomNumbers(buf []byte) error
}

// DMA moves buffers between caller memory and engine-local memory.
type DMA interface {
	Transfer(dst, src []byte) error
}

// Set bundles the engines an operation needs.
type Set struct {
	RSA  RSA
	AES  AES
	SHA  SHA
	TRNG TRNG
	DMA  DMA
}
