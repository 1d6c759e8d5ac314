// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package api

// HashMode names such as "sha2-256" are accepted wherever a request carries
// a hash mode; see `engine.ParseHashMode`.

// PublicKey is a big-endian RSA public key.
type PublicKey struct {
	Modulus  []byte `cbor:"1,keyasint"`
	Exponent []byte `cbor:"2,keyasint"`
}

// CreateKeyRequest asks the service to generate and store a key pair.
type CreateKeyRequest struct {
	KeyLabel string `cbor:"1,keyasint"`
	Bits     int    `cbor:"2,keyasint"`
}

type CreateKeyResponse struct {
	PublicKey *PublicKey `cbor:"1,keyasint"`
}

type GetPublicKeyRequest struct {
	KeyLabel string `cbor:"1,keyasint"`
}

type GetPublicKeyResponse struct {
	PublicKey *PublicKey `cbor:"1,keyasint"`
}

// KeyWrapRequest wraps Input for a stored key or, when KeyLabel is empty,
// for PublicKey.
type KeyWrapRequest struct {
	KeyLabel   string     `cbor:"1,keyasint,omitempty"`
	PublicKey  *PublicKey `cbor:"2,keyasint,omitempty"`
	Input      []byte     `cbor:"3,keyasint"`
	AESKeySize int        `cbor:"4,keyasint"`
	OAEPLabel  []byte     `cbor:"5,keyasint,omitempty"`
	HashMode   string     `cbor:"6,keyasint"`
}

type KeyWrapResponse struct {
	Wrapped []byte `cbor:"1,keyasint"`
}

// KeyUnwrapRequest unwraps with the private half of a stored key.
type KeyUnwrapRequest struct {
	KeyLabel   string `cbor:"1,keyasint"`
	Wrapped    []byte `cbor:"2,keyasint"`
	AESKeySize int    `cbor:"3,keyasint"`
	OAEPLabel  []byte `cbor:"4,keyasint,omitempty"`
	HashMode   string `cbor:"5,keyasint"`
}

type KeyUnwrapResponse struct {
	Key []byte `cbor:"1,keyasint"`
}

type OaepEncryptRequest struct {
	KeyLabel  string     `cbor:"1,keyasint,omitempty"`
	PublicKey *PublicKey `cbor:"2,keyasint,omitempty"`
	Message   []byte     `cbor:"3,keyasint"`
	OAEPLabel []byte     `cbor:"4,keyasint,omitempty"`
	HashMode  string     `cbor:"5,keyasint"`
}

type OaepEncryptResponse struct {
	Ciphertext []byte `cbor:"1,keyasint"`
}

type OaepDecryptRequest struct {
	KeyLabel   string `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
	OAEPLabel  []byte `cbor:"3,keyasint,omitempty"`
	HashMode   string `cbor:"4,keyasint"`
}

type OaepDecryptResponse struct {
	Message []byte `cbor:"1,keyasint"`
}

// PssSignRequest signs Message, or the digest in Message when Prehashed is
// set.
type PssSignRequest struct {
	KeyLabel  string `cbor:"1,keyasint"`
	Message   []byte `cbor:"2,keyasint"`
	Prehashed bool   `cbor:"3,keyasint,omitempty"`
	SaltLen   int    `cbor:"4,keyasint"`
	HashMode  string `cbor:"5,keyasint"`
}

type PssSignResponse struct {
	Signature []byte `cbor:"1,keyasint"`
}

// PssVerifyRequest checks Signature. An invalid signature fails the call.
type PssVerifyRequest struct {
	KeyLabel  string     `cbor:"1,keyasint,omitempty"`
	PublicKey *PublicKey `cbor:"2,keyasint,omitempty"`
	Message   []byte     `cbor:"3,keyasint"`
	Prehashed bool       `cbor:"4,keyasint,omitempty"`
	SaltLen   int        `cbor:"5,keyasint"`
	Signature []byte     `cbor:"6,keyasint"`
	HashMode  string     `cbor:"7,keyasint"`
}

type PssVerifyResponse struct{}
