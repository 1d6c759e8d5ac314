// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package padding

import (
	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

const (
	pssTrailer   = 0xBC
	pssZeroBytes = 8
)

func zeroizePSS(a *scratch.Arena) error {
	return fih.Zeroize(a.DataBlock[:], a.MaskedDB[:], a.MsgBlock[:], a.Hash[:], a.HashCmp[:], a.EM[:])
}

// checkPSS validates the parameters shared by sign and verify and returns
// k, hLen and the PS length.
func checkPSS(modulus []byte, mode engine.HashMode, input InputType, msg []byte, sLen int) (int, int, int, error) {
	k, hLen, err := checkKey(modulus, mode)
	if err != nil {
		return 0, 0, 0, err
	}
	switch input {
	case RawInput:
	case HashedInput:
		if len(msg) != hLen {
			return 0, 0, 0, errcode.Errorf(errcode.InvalidParam, "hashed input of %d bytes, want %d", len(msg), hLen)
		}
	default:
		return 0, 0, 0, errcode.Errorf(errcode.InvalidParam, "input type %d", input)
	}
	if sLen < 0 || sLen > hLen {
		return 0, 0, 0, errcode.Errorf(errcode.PssInvalidSaltLen, "salt of %d bytes, at most %d", sLen, hLen)
	}
	if k < hLen+sLen+2 {
		return 0, 0, 0, errcode.Errorf(errcode.PssInvalidLen, "key of %d bytes too short", k)
	}
	psLen := k - sLen - hLen - 2
	if psLen == 0 {
		return 0, 0, 0, errcode.New(errcode.PssNoSaltNoRandomString)
	}
	return k, hLen, psLen, nil
}

// messageHash writes mHash into a.MsgBlock after the zero prefix.
func messageHash(e engine.Set, a *scratch.Arena, mode engine.HashMode, input InputType, msg []byte, hLen int) error {
	mHash := a.MsgBlock[pssZeroBytes : pssZeroBytes+hLen]
	if input == HashedInput {
		if err := e.DMA.Transfer(mHash, msg); err != nil {
			return errcode.Step(errcode.DmaCopyFail, err)
		}
		return nil
	}
	return digest(e.SHA, mode, msg, mHash)
}

// PSSSign signs p.Msg with p.Key into p.Out[:k].
//
//	M'       = 0x00^8 || mHash || salt
//	DB       = PS || 0x01 || salt
//	EM       = (DB ^ MGF1(H(M'))) || H(M') || 0xBC
func PSSSign(e engine.Set, a *scratch.Arena, p *PSSSignParams) (err error) {
	if a == nil || p == nil || p.Key == nil {
		return errcode.Errorf(errcode.InvalidParam, "PSS sign: missing arena, params or key")
	}
	k, hLen, psLen, err := checkPSS(p.Key.Modulus, p.Mode, p.Input, p.Msg, p.SaltLen)
	if err != nil {
		return err
	}
	if len(p.Out) < k {
		return errcode.Errorf(errcode.InvalidParam, "output of %d bytes, need %d", len(p.Out), k)
	}

	defer func() {
		err = errcode.Update(err, zeroizePSS(a))
	}()

	sLen := p.SaltLen
	dbLen := k - hLen - 1
	mPrime := a.MsgBlock[:pssZeroBytes+hLen+sLen]
	salt := mPrime[pssZeroBytes+hLen:]
	h := a.Hash[:hLen]
	db := a.DataBlock[:dbLen]
	maskedDB := a.MaskedDB[:dbLen]
	em := a.EM[:k]

	if err := messageHash(e, a, p.Mode, p.Input, p.Msg, hLen); err != nil {
		return err
	}
	clear(mPrime[:pssZeroBytes])
	if sLen > 0 {
		if err := e.TRNG.GetRandomNumbers(salt); err != nil {
			return errcode.Step(errcode.RandGenError, err)
		}
	}
	if err := digest(e.SHA, p.Mode, mPrime, h); err != nil {
		return err
	}

	clear(db[:psLen])
	db[psLen] = 0x01
	copy(db[psLen+1:], salt)

	if err := MGF1(e.SHA, p.Mode, h, maskedDB); err != nil {
		return errcode.Step(errcode.MaskGenDataBlockError, err)
	}
	xorInto(maskedDB, db)
	maskedDB[0] &= 0x7F

	copy(em, maskedDB)
	copy(em[dbLen:], h)
	em[k-1] = pssTrailer

	if err := e.RSA.PrivateExp(em, p.Out[:k], p.Key); err != nil {
		return errcode.Step(errcode.PssEncryptError, err)
	}
	return nil
}

// PSSVerify checks p.Sig over p.Msg. It returns nil for a valid signature.
func PSSVerify(e engine.Set, a *scratch.Arena, p *PSSVerifyParams) (err error) {
	if a == nil || p == nil || p.Key == nil {
		return errcode.Errorf(errcode.InvalidParam, "PSS verify: missing arena, params or key")
	}
	k, hLen, psLen, err := checkPSS(p.Key.Modulus, p.Mode, p.Input, p.Msg, p.SaltLen)
	if err != nil {
		return err
	}
	if len(p.Sig) != k {
		return errcode.Errorf(errcode.PssInvalidLen, "signature of %d bytes, want %d", len(p.Sig), k)
	}

	defer func() {
		err = errcode.Update(err, zeroizePSS(a))
	}()

	sLen := p.SaltLen
	dbLen := k - hLen - 1
	mPrime := a.MsgBlock[:pssZeroBytes+hLen+sLen]
	hPrime := a.HashCmp[:hLen]
	db := a.DataBlock[:dbLen]
	em := a.EM[:k]

	if err := messageHash(e, a, p.Mode, p.Input, p.Msg, hLen); err != nil {
		return err
	}

	if err := e.RSA.PublicExp(p.Sig, em, p.Key); err != nil {
		return errcode.Step(errcode.PssDecryptError, err)
	}
	maskedDB := em[:dbLen]
	h := em[dbLen : dbLen+hLen]

	if em[k-1] != pssTrailer {
		return errcode.New(errcode.PssRightMostCmpFail)
	}
	if em[0]&0x80 != 0 {
		return errcode.New(errcode.PssLeftMostBitCmpFail)
	}

	if err := MGF1(e.SHA, p.Mode, h, db); err != nil {
		return errcode.Step(errcode.MaskGenDataBlockError, err)
	}
	xorInto(db, maskedDB)
	db[0] &= 0x7F

	var acc byte
	for _, b := range db[:psLen] {
		acc |= b
	}
	if acc != 0 {
		return errcode.New(errcode.PssDbLeftMostByteCmpFail)
	}
	if db[psLen] != 0x01 {
		return errcode.New(errcode.PssDbByteOneCmpFail)
	}

	clear(mPrime[:pssZeroBytes])
	copy(mPrime[pssZeroBytes+hLen:], db[dbLen-sLen:])
	if err := digest(e.SHA, p.Mode, mPrime, hPrime); err != nil {
		return err
	}
	if !fih.Equal(hPrime, h) {
		return errcode.New(errcode.PssHashCmpFail)
	}
	return nil
}
