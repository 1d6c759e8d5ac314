// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package hsm

import (
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// SHA-3 mechanisms from PKCS#11 v3.0.
const (
	ckmSHA3_256 = 0x000002B0
	ckmSHA3_384 = 0x000002C0
	ckmSHA3_512 = 0x000002D0
)

var digestMech = map[engine.HashMode]uint{
	engine.SHA2_256: pkcs11.CKM_SHA256,
	engine.SHA2_384: pkcs11.CKM_SHA384,
	engine.SHA2_512: pkcs11.CKM_SHA512,
	engine.SHA3_256: ckmSHA3_256,
	engine.SHA3_384: ckmSHA3_384,
	engine.SHA3_512: ckmSHA3_512,
}

// rightAlign copies res into out, left-padding with zeros. Tokens may strip
// leading zero bytes from raw RSA results.
func rightAlign(out, res []byte) error {
	if len(res) > len(out) {
		return fmt.Errorf("token returned %d bytes, want %d", len(res), len(out))
	}
	pad := len(out) - len(res)
	clear(out[:pad])
	copy(out[pad:], res)
	clear(res)
	return nil
}

// RSA performs raw exponentiation on the token.
type RSA struct {
	h *HSM
}

func checkOperands(in, out []byte, k int) error {
	if k == 0 {
		return errcode.Errorf(errcode.InvalidParam, "empty modulus")
	}
	if len(in) != k || len(out) != k {
		return errcode.Errorf(errcode.InvalidParam, "operand length %d/%d, want %d", len(in), len(out), k)
	}
	return nil
}

// PublicExp computes out = in^e mod n.
func (r *RSA) PublicExp(in, out []byte, key *engine.RSAPublicKey) error {
	if key == nil {
		return errcode.Errorf(errcode.InvalidParam, "nil public key")
	}
	if err := checkOperands(in, out, key.Size()); err != nil {
		return err
	}
	tpl := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, key.Modulus),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, key.Exponent),
	}
	return r.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		obj, err := ctx.CreateObject(s, tpl)
		if err != nil {
			return fmt.Errorf("failed to import RSA public key: %v", err)
		}
		defer ctx.DestroyObject(s, obj)

		mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_X_509, nil)}
		if err := ctx.EncryptInit(s, mech, obj); err != nil {
			return fmt.Errorf("C_EncryptInit: %v", err)
		}
		res, err := ctx.Encrypt(s, in)
		if err != nil {
			return fmt.Errorf("C_Encrypt: %v", err)
		}
		return rightAlign(out, res)
	})
}

// PrivateExp computes out = in^d mod n.
func (r *RSA) PrivateExp(in, out []byte, key *engine.RSAPrivateKey) error {
	if key == nil {
		return errcode.Errorf(errcode.InvalidParam, "nil private key")
	}
	if err := checkOperands(in, out, key.Size()); err != nil {
		return err
	}
	tpl := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, key.Modulus),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, key.PublicExponent),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE_EXPONENT, key.PrivateExponent),
	}
	return r.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		obj, err := ctx.CreateObject(s, tpl)
		if err != nil {
			return fmt.Errorf("failed to import RSA private key: %v", err)
		}
		defer ctx.DestroyObject(s, obj)

		mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_X_509, nil)}
		if err := ctx.DecryptInit(s, mech, obj); err != nil {
			return fmt.Errorf("C_DecryptInit: %v", err)
		}
		res, err := ctx.Decrypt(s, in)
		if err != nil {
			return fmt.Errorf("C_Decrypt: %v", err)
		}
		return rightAlign(out, res)
	})
}

// AES keeps one session secret key per engine key slot.
type AES struct {
	h  *HSM
	mu sync.Mutex
}

// WriteKey imports key as a session object bound to slot.
func (a *AES) WriteKey(slot engine.KeySlot, key []byte) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.AesWriteKeyFailed, "invalid slot %d", slot)
	}
	if !engine.AESKeySize(len(key)).Valid() {
		return errcode.Errorf(errcode.AesWriteKeyFailed, "invalid key length %d", len(key))
	}
	tpl := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_SECRET_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_AES),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, false),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, false),
		pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, key),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		obj, err := ctx.CreateObject(s, tpl)
		if err != nil {
			return errcode.Wrap(errcode.AesWriteKeyFailed, err)
		}
		if old := a.h.keys[slot]; old != 0 {
			ctx.DestroyObject(s, old)
		}
		a.h.keys[slot] = obj
		return nil
	})
}

// Compute runs AES-ECB over in with the key in slot.
func (a *AES) Compute(slot engine.KeySlot, op engine.AESOp, in, out []byte) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.InvalidParam, "invalid slot %d", slot)
	}
	if len(in) == 0 || len(in)%engine.AESBlockSize != 0 || len(out) < len(in) {
		return errcode.Errorf(errcode.InvalidParam, "bad ECB lengths in=%d out=%d", len(in), len(out))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	obj := a.h.keys[slot]
	if obj == 0 {
		return errcode.Errorf(errcode.InvalidParam, "slot %d is empty", slot)
	}
	return a.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_AES_ECB, nil)}
		var (
			res []byte
			err error
		)
		switch op {
		case engine.AESEncrypt:
			if err = ctx.EncryptInit(s, mech, obj); err == nil {
				res, err = ctx.Encrypt(s, in)
			}
		case engine.AESDecrypt:
			if err = ctx.DecryptInit(s, mech, obj); err == nil {
				res, err = ctx.Decrypt(s, in)
			}
		default:
			return errcode.Errorf(errcode.InvalidParam, "unknown AES op %d", op)
		}
		if err != nil {
			return fmt.Errorf("AES-ECB on slot %d: %v", slot, err)
		}
		if len(res) != len(in) {
			clear(res)
			return fmt.Errorf("AES-ECB returned %d bytes, want %d", len(res), len(in))
		}
		copy(out, res)
		clear(res)
		return nil
	})
}

// KeyClear destroys the key object bound to slot. Clearing an empty slot
// succeeds.
func (a *AES) KeyClear(slot engine.KeySlot) error {
	if !slot.Valid() {
		return errcode.Errorf(errcode.KeywrapAesKeyClearFail, "invalid slot %d", slot)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	obj := a.h.keys[slot]
	if obj == 0 {
		return nil
	}
	return a.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		if err := ctx.DestroyObject(s, obj); err != nil {
			return errcode.Wrap(errcode.KeywrapAesKeyClearFail, err)
		}
		a.h.keys[slot] = 0
		return nil
	})
}

// Loaded reports whether slot holds a key.
func (a *AES) Loaded(slot engine.KeySlot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slot.Valid() && a.h.keys[slot] != 0
}

// SHA computes single-shot digests on the token.
type SHA struct {
	h *HSM
}

// Digest writes the digest of data to out.
func (d *SHA) Digest(mode engine.HashMode, data, out []byte) error {
	mech, ok := digestMech[mode]
	if !ok {
		return errcode.Errorf(errcode.InvalidHashMode, "hash mode %v", mode)
	}
	if len(out) < mode.Size() {
		return errcode.Errorf(errcode.DigestCalcFail, "digest buffer of %d bytes", len(out))
	}
	return d.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		if err := ctx.DigestInit(s, []*pkcs11.Mechanism{pkcs11.NewMechanism(mech, nil)}); err != nil {
			return errcode.Wrap(errcode.DigestCalcFail, err)
		}
		sum, err := ctx.Digest(s, data)
		if err != nil {
			return errcode.Wrap(errcode.DigestCalcFail, err)
		}
		if len(sum) != mode.Size() {
			return errcode.Errorf(errcode.DigestCalcFail, "%v digest of %d bytes", mode, len(sum))
		}
		copy(out, sum)
		return nil
	})
}

// TRNG reads the token's random number generator.
type TRNG struct {
	h *HSM
}

// GetRandomNumbers fills buf.
func (r *TRNG) GetRandomNumbers(buf []byte) error {
	if len(buf) == 0 {
		return errcode.Errorf(errcode.RandGenError, "empty buffer")
	}
	return r.h.ExecuteCmd(func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error {
		rnd, err := ctx.GenerateRandom(s, len(buf))
		if err != nil {
			return errcode.Wrap(errcode.RandGenError, err)
		}
		if len(rnd) != len(buf) {
			return errcode.Errorf(errcode.RandGenError, "short read %d of %d", len(rnd), len(buf))
		}
		copy(buf, rnd)
		clear(rnd)
		return nil
	})
}
