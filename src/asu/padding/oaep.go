// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package padding

import (
	"crypto/subtle"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

// MaxOAEPMsgLen returns the longest message OAEP can encode for a key of k
// bytes and digests of hLen bytes.
func MaxOAEPMsgLen(k, hLen int) int {
	return k - 2*hLen - 2
}

// zeroizeOAEP clears the arena regions OAEP touches.
func zeroizeOAEP(a *scratch.Arena) error {
	return fih.Zeroize(a.DataBlock[:], a.MaskedDB[:], a.Seed[:], a.MaskedSeed[:], a.HashCmp[:], a.EM[:])
}

// OAEPEncode pads p.Msg and encrypts it under p.Key into p.Out[:k].
//
//	DB = lHash || PS || 0x01 || M
//	EM = 0x00 || (seed ^ MGF1(maskedDB)) || (DB ^ MGF1(seed))
func OAEPEncode(e engine.Set, a *scratch.Arena, p *OAEPEncodeParams) (err error) {
	if a == nil || p == nil || p.Key == nil {
		return errcode.Errorf(errcode.InvalidParam, "OAEP encode: missing arena, params or key")
	}
	k, hLen, err := checkKey(p.Key.Modulus, p.Mode)
	if err != nil {
		return err
	}
	mLen := len(p.Msg)
	if mLen > MaxOAEPMsgLen(k, hLen) {
		return errcode.Errorf(errcode.OaepInvalidLen, "message of %d bytes, at most %d", mLen, MaxOAEPMsgLen(k, hLen))
	}
	if len(p.Out) < k {
		return errcode.Errorf(errcode.InvalidParam, "output of %d bytes, need %d", len(p.Out), k)
	}

	defer func() {
		err = errcode.Update(err, zeroizeOAEP(a))
	}()

	dbLen := k - hLen - 1
	db := a.DataBlock[:dbLen]
	maskedDB := a.MaskedDB[:dbLen]
	seed := a.Seed[:hLen]
	maskedSeed := a.MaskedSeed[:hLen]
	em := a.EM[:k]

	// lHash comes first: it is the only digest of caller data that may be
	// chunked, and re-invocation then resumes before any random draw.
	if err := digest(e.SHA, p.Mode, p.Label, db[:hLen]); err != nil {
		return err
	}
	psEnd := dbLen - mLen - 1
	clear(db[hLen:psEnd])
	db[psEnd] = 0x01
	if mLen > 0 {
		if err := e.DMA.Transfer(db[psEnd+1:], p.Msg); err != nil {
			return errcode.Step(errcode.DmaCopyFail, err)
		}
	}

	if err := e.TRNG.GetRandomNumbers(seed); err != nil {
		return errcode.Step(errcode.RandGenError, err)
	}

	if err := MGF1(e.SHA, p.Mode, seed, maskedDB); err != nil {
		return errcode.Step(errcode.MaskGenDataBlockError, err)
	}
	xorInto(maskedDB, db)

	if err := MGF1(e.SHA, p.Mode, maskedDB, maskedSeed); err != nil {
		return errcode.Step(errcode.MaskGenSeedBufferError, err)
	}
	xorInto(maskedSeed, seed)

	em[0] = 0x00
	copy(em[1:], maskedSeed)
	copy(em[1+hLen:], maskedDB)

	if err := e.RSA.PublicExp(em, p.Out[:k], p.Key); err != nil {
		return errcode.Step(errcode.OaepEncryptError, err)
	}
	return nil
}

// OAEPDecode decrypts p.Ciphertext with p.Key, checks the padding and copies
// the message into p.Out. It returns the message length. Nothing is written
// to p.Out unless every check passes.
func OAEPDecode(e engine.Set, a *scratch.Arena, p *OAEPDecodeParams) (n int, err error) {
	if a == nil || p == nil || p.Key == nil {
		return 0, errcode.Errorf(errcode.InvalidParam, "OAEP decode: missing arena, params or key")
	}
	k, hLen, err := checkKey(p.Key.Modulus, p.Mode)
	if err != nil {
		return 0, err
	}
	if len(p.Ciphertext) != k || k < 2*hLen+2 {
		return 0, errcode.Errorf(errcode.OaepInvalidLen, "ciphertext of %d bytes, want %d", len(p.Ciphertext), k)
	}

	defer func() {
		err = errcode.Update(err, zeroizeOAEP(a))
	}()

	dbLen := k - hLen - 1
	db := a.DataBlock[:dbLen]
	seed := a.Seed[:hLen]
	lHash := a.HashCmp[:hLen]
	em := a.EM[:k]

	if err := digest(e.SHA, p.Mode, p.Label, lHash); err != nil {
		return 0, err
	}

	if err := e.RSA.PrivateExp(p.Ciphertext, em, p.Key); err != nil {
		return 0, errcode.Step(errcode.OaepDecryptError, err)
	}
	maskedSeed := em[1 : 1+hLen]
	maskedDB := em[1+hLen:]

	if err := MGF1(e.SHA, p.Mode, maskedDB, seed); err != nil {
		return 0, errcode.Step(errcode.MaskGenSeedBufferError, err)
	}
	xorInto(seed, maskedSeed)

	if err := MGF1(e.SHA, p.Mode, seed, db); err != nil {
		return 0, errcode.Step(errcode.MaskGenDataBlockError, err)
	}
	xorInto(db, maskedDB)

	// Every check runs to completion before any of them is acted on, and the
	// separator scan touches all of PS whatever its content.
	leadOK := subtle.ConstantTimeByteEq(em[0], 0x00)
	hashOK := 0
	if fih.Equal(db[:hLen], lHash) {
		hashOK = 1
	}
	searching, sep, invalid := 1, 0, 0
	for i := hLen; i < dbLen; i++ {
		isZero := subtle.ConstantTimeByteEq(db[i], 0x00)
		isOne := subtle.ConstantTimeByteEq(db[i], 0x01)
		sep = subtle.ConstantTimeSelect(searching&isOne, i, sep)
		searching = subtle.ConstantTimeSelect(isOne, 0, searching)
		invalid = subtle.ConstantTimeSelect(searching&^isZero, 1, invalid)
	}

	if leadOK != 1 {
		return 0, errcode.New(errcode.OaepLeadingByteCmpFail)
	}
	if hashOK != 1 {
		return 0, errcode.New(errcode.OaepHashCmpFail)
	}
	if searching != 0 || invalid != 0 || db[sep] != 0x01 {
		return 0, errcode.New(errcode.OaepOneSepCmpFail)
	}

	n = dbLen - sep - 1
	if n > MaxOAEPMsgLen(k, hLen) {
		return 0, errcode.Errorf(errcode.OaepInvalidLen, "recovered %d bytes", n)
	}
	if n > 0 {
		if err := e.DMA.Transfer(p.Out, db[sep+1:]); err != nil {
			return 0, errcode.Step(errcode.DmaCopyFail, err)
		}
	}
	return n, nil
}
