// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package padding implements the RSA padding schemes of RFC 8017: OAEP for
// encryption, PSS for signatures and the MGF1 mask generator they share.
//
// The padding code only builds and parses encoded blocks. Digests, random
// numbers, modular exponentiation and copies to and from caller memory are
// delegated to the engines in an engine.Set, and every intermediate value
// lives in a scratch.Arena that is zeroized before each function returns.
//
// A digest engine may report errcode.CmdInProgress while it absorbs a long
// caller input in chunks. The padding functions return that status unchanged
// and the caller repeats the call with the same arguments.
package padding

import (
	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// InputType tells PSS whether the message still has to be hashed.
type InputType int

const (
	RawInput InputType = iota
	HashedInput
)

// OAEPEncodeParams are the inputs of OAEPEncode.
type OAEPEncodeParams struct {
	Mode engine.HashMode
	// Label is optional; nil is the empty label.
	Label []byte
	Msg   []byte
	Key   *engine.RSAPublicKey
	// Out receives the Key.Size() byte ciphertext.
	Out []byte
}

// OAEPDecodeParams are the inputs of OAEPDecode.
type OAEPDecodeParams struct {
	Mode       engine.HashMode
	Label      []byte
	Ciphertext []byte
	Key        *engine.RSAPrivateKey
	// Out receives the recovered message.
	Out []byte
}

// PSSSignParams are the inputs of PSSSign.
type PSSSignParams struct {
	Mode    engine.HashMode
	Input   InputType
	Msg     []byte
	SaltLen int
	Key     *engine.RSAPrivateKey
	// Out receives the Key.Size() byte signature.
	Out []byte
}

// PSSVerifyParams are the inputs of PSSVerify.
type PSSVerifyParams struct {
	Mode    engine.HashMode
	Input   InputType
	Msg     []byte
	SaltLen int
	Sig     []byte
	Key     *engine.RSAPublicKey
}

// checkKey validates the key size and hash mode shared by every operation
// and returns the key and digest lengths.
func checkKey(modulus []byte, mode engine.HashMode) (int, int, error) {
	if !mode.Valid() {
		return 0, 0, errcode.Errorf(errcode.InvalidHashMode, "hash mode %v", mode)
	}
	k := len(modulus)
	if !engine.ValidKeySize(k) {
		return 0, 0, errcode.Errorf(errcode.InvalidKeySize, "key size %d", k)
	}
	return k, mode.Size(), nil
}

// digest runs the digest engine. CmdInProgress and coded engine errors pass
// through unchanged.
func digest(sha engine.SHA, mode engine.HashMode, data, out []byte) error {
	err := sha.Digest(mode, data, out)
	if err == nil || errcode.CodeOf(err) != errcode.Unknown {
		return err
	}
	return errcode.Wrap(errcode.DigestCalcFail, err)
}

// xorInto sets dst[i] ^= src[i].
func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}
