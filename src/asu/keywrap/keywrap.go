// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package keywrap implements AES key wrap with padding (RFC 5649) on top of
// an AES engine key slot, and the hybrid RSA-OAEP plus AES-KWP key wrap built
// from it.
//
// The hybrid wire format is
//
//	RSA-OAEP(ephemeral AES key) (k bytes) || AES-KWP(input)
//
// where k is the RSA key size. The ephemeral key is drawn from the TRNG, is
// only ever held in the scratch arena and the AES engine slot EphemeralSlot,
// and both are cleared before Wrap and Unwrap return.
package keywrap

import (
	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/padding"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

// EphemeralSlot is the AES key slot reserved for the ephemeral key.
const EphemeralSlot = engine.UserKey7

// WrapParams are the inputs of Wrap.
type WrapParams struct {
	Input []byte
	// Out receives the wrapped output; its length is the capacity.
	Out        []byte
	Key        *engine.RSAPublicKey
	AESKeySize engine.AESKeySize
	// Label is the optional OAEP label.
	Label []byte
	Mode  engine.HashMode
}

// UnwrapParams are the inputs of Unwrap.
type UnwrapParams struct {
	Input      []byte
	Out        []byte
	Key        *engine.RSAPrivateKey
	AESKeySize engine.AESKeySize
	Label      []byte
	Mode       engine.HashMode
}

// RequiredLen returns the Wrap output length for n input bytes under a key
// of k bytes.
func RequiredLen(n, k int) int {
	return WrappedLen(n) + k
}

func checkCommon(modulus []byte, size engine.AESKeySize, mode engine.HashMode) (int, error) {
	k := len(modulus)
	if !engine.ValidKeySize(k) {
		return 0, errcode.Errorf(errcode.InvalidKeySize, "RSA key size %d", k)
	}
	if !size.Valid() {
		return 0, errcode.Errorf(errcode.InvalidKeySize, "AES key size %d", size)
	}
	if !mode.Valid() {
		return 0, errcode.Errorf(errcode.InvalidHashMode, "hash mode %v", mode)
	}
	return k, nil
}

// epilogue clears the ephemeral key slot and the in-memory key copy. The
// slot clear runs twice and any failure of it is reported as
// KeywrapAesKeyClearFail, but only when nothing failed before.
func epilogue(e engine.Set, a *scratch.Arena, err error) error {
	clearErr := fih.Twice(func() error {
		return e.AES.KeyClear(EphemeralSlot)
	})
	if !fih.Ok(clearErr) {
		clearErr = errcode.Wrap(errcode.KeywrapAesKeyClearFail, clearErr)
	}
	err = errcode.Update(err, clearErr)
	return errcode.Update(err, fih.Zeroize(a.AESKey[:]))
}

// Wrap encrypts p.Input for the holder of the private half of p.Key. It
// returns the output length. When p.Out is too small nothing else happens:
// the required length is returned with KeywrapInvalidOutputBufLen.
func Wrap(e engine.Set, a *scratch.Arena, p *WrapParams) (n int, err error) {
	if a == nil || p == nil || p.Key == nil {
		return 0, errcode.Errorf(errcode.KeywrapInvalidParam, "key wrap: missing arena, params or key")
	}
	k, err := checkCommon(p.Key.Modulus, p.AESKeySize, p.Mode)
	if err != nil {
		return 0, err
	}
	if len(p.Input) == 0 || len(p.Input) > KWPMaxInput {
		return 0, errcode.Errorf(errcode.KeywrapInvalidParam, "key wrap: input of %d bytes", len(p.Input))
	}
	required := RequiredLen(len(p.Input), k)
	if len(p.Out) < required {
		return required, errcode.Errorf(errcode.KeywrapInvalidOutputBufLen, "output of %d bytes, need %d", len(p.Out), required)
	}

	defer func() {
		err = epilogue(e, a, err)
		if err != nil {
			n = 0
		}
	}()

	key := a.AESKey[:p.AESKeySize]
	if err := e.TRNG.GetRandomNumbers(key); err != nil {
		return 0, errcode.Step(errcode.RandGenError, err)
	}

	if err := padding.OAEPEncode(e, a, &padding.OAEPEncodeParams{
		Mode:  p.Mode,
		Label: p.Label,
		Msg:   key,
		Key:   p.Key,
		Out:   p.Out[:k],
	}); err != nil {
		return 0, errcode.Step(errcode.OaepEncodeError, err)
	}

	if err := e.AES.WriteKey(EphemeralSlot, key); err != nil {
		return 0, errcode.Step(errcode.AesWriteKeyFailed, err)
	}
	if err := fih.Zeroize(key); err != nil {
		return 0, err
	}

	if _, err := KWPWrap(e, a, EphemeralSlot, p.Input, p.Out[k:required]); err != nil {
		return 0, errcode.Step(errcode.KeywrapAesWrappedKeyError, err)
	}
	return required, nil
}

// Unwrap reverses Wrap with the private key p.Key and writes the recovered
// input to p.Out. It returns the recovered length.
//
// An output buffer shorter than the smallest plaintext the wrapped length
// allows is rejected with KeywrapInvalidOutputBufLen before any engine is
// used. The exact length is only known after the integrity checks; a buffer
// shorter than that fails with the same code.
func Unwrap(e engine.Set, a *scratch.Arena, p *UnwrapParams) (n int, err error) {
	if a == nil || p == nil || p.Key == nil {
		return 0, errcode.Errorf(errcode.KeywrapInvalidParam, "key unwrap: missing arena, params or key")
	}
	k, err := checkCommon(p.Key.Modulus, p.AESKeySize, p.Mode)
	if err != nil {
		return 0, err
	}
	kwpLen := len(p.Input) - k
	if kwpLen > KWPMaxOutput {
		return 0, errcode.Errorf(errcode.KeywrapInvalidParam, "key unwrap: wrapped part of %d bytes", kwpLen)
	}
	if kwpLen < 2*SemiBlock || kwpLen%SemiBlock != 0 {
		return 0, errcode.Errorf(errcode.KeywrapInvalidParam, "key unwrap: input of %d bytes", len(p.Input))
	}
	minOut := kwpLen - SemiBlock - maxPadLen
	if len(p.Out) < minOut {
		return minOut, errcode.Errorf(errcode.KeywrapInvalidOutputBufLen, "output of %d bytes, need at least %d", len(p.Out), minOut)
	}

	// A plaintext already copied out is withdrawn when the epilogue fails.
	defer func() {
		err = epilogue(e, a, err)
		if err != nil {
			if n > 0 {
				err = errcode.Update(err, fih.Zeroize(p.Out[:n]))
			}
			n = 0
		}
	}()

	key := a.AESKey[:]
	keyLen, err := padding.OAEPDecode(e, a, &padding.OAEPDecodeParams{
		Mode:       p.Mode,
		Label:      p.Label,
		Ciphertext: p.Input[:k],
		Key:        p.Key,
		Out:        key,
	})
	if err != nil {
		return 0, errcode.Step(errcode.OaepDecodeError, err)
	}
	if keyLen != int(p.AESKeySize) {
		return 0, errcode.Wrap(errcode.OaepDecodeError,
			errcode.Errorf(errcode.InvalidKeySize, "recovered a %d byte key, want %d", keyLen, p.AESKeySize))
	}

	if err := e.AES.WriteKey(EphemeralSlot, key[:keyLen]); err != nil {
		return 0, errcode.Step(errcode.AesWriteKeyFailed, err)
	}
	if err := fih.Zeroize(key); err != nil {
		return 0, err
	}

	n, err = KWPUnwrap(e, a, EphemeralSlot, p.Input[k:], p.Out)
	if err != nil {
		if errcode.CodeOf(err) == errcode.KeywrapInvalidOutputBufLen {
			return 0, err
		}
		return 0, errcode.Step(errcode.KeywrapAesUnwrappedKeyError, err)
	}
	return n, nil
}
