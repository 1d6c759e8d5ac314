// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"encoding/binary"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

const (
	// SemiBlock is the KWP chaining unit.
	SemiBlock = 8

	// KWPMaxOutput is the longest wrapped block, header included.
	KWPMaxOutput = scratch.KWPMaxLen

	// KWPMaxInput is the longest plaintext that can be wrapped.
	KWPMaxInput = KWPMaxOutput - SemiBlock

	// kwpRounds is the number of passes over the semi-blocks.
	kwpRounds = 6

	maxPadLen = SemiBlock - 1
)

// icv is the alternative initial value of RFC 5649.
var icv = [4]byte{0xA6, 0x59, 0x59, 0xA6}

// PadLen returns the zero padding added to n bytes of plaintext.
func PadLen(n int) int {
	return (SemiBlock - n%SemiBlock) % SemiBlock
}

// WrappedLen returns the KWP output length for n bytes of plaintext.
func WrappedLen(n int) int {
	return n + PadLen(n) + SemiBlock
}

// tweak XORs t into the low 16 bits of the chaining value a.
func tweak(a []byte, t int) {
	v := binary.BigEndian.Uint16(a[6:8]) ^ uint16(t)
	binary.BigEndian.PutUint16(a[6:8], v)
}

func zeroizeKWP(a *scratch.Arena) error {
	return fih.Zeroize(a.KWP[:], a.KWPOut[:], a.AESIn[:], a.AESOut[:])
}

// KWPWrap wraps in with the AES key held in slot and DMA-copies the result
// to out. It returns the wrapped length.
func KWPWrap(e engine.Set, a *scratch.Arena, slot engine.KeySlot, in, out []byte) (n int, err error) {
	if a == nil || len(in) == 0 {
		return 0, errcode.Errorf(errcode.InvalidParam, "KWP wrap: missing arena or input")
	}
	if len(in) > KWPMaxInput {
		return 0, errcode.Errorf(errcode.InvalidParam, "KWP wrap: %d bytes, at most %d", len(in), KWPMaxInput)
	}

	defer func() {
		err = errcode.Update(err, zeroizeKWP(a))
	}()

	t := WrappedLen(len(in))
	buf := a.KWP[:t]
	res := a.KWPOut[:t]

	copy(buf[:4], icv[:])
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(in)))
	if err := e.DMA.Transfer(buf[SemiBlock:], in); err != nil {
		return 0, errcode.Step(errcode.DmaCopyFail, err)
	}
	clear(buf[SemiBlock+len(in):])

	if len(in) > SemiBlock {
		maxRounds := t/SemiBlock - 1
		copy(a.AESIn[:SemiBlock], buf[:SemiBlock])
		round := 0
		for ; round < kwpRounds; round++ {
			src := res
			if round == 0 {
				src = buf
			}
			for blk := 1; blk <= maxRounds; blk++ {
				copy(a.AESIn[SemiBlock:], src[SemiBlock*blk:SemiBlock*(blk+1)])
				if err := e.AES.Compute(slot, engine.AESEncrypt, a.AESIn[:], a.AESOut[:]); err != nil {
					return 0, errcode.Wrap(errcode.KeywrapAesDataCalcFail, err)
				}
				tweak(a.AESOut[:SemiBlock], maxRounds*round+blk)
				copy(a.AESIn[:SemiBlock], a.AESOut[:SemiBlock])
				copy(res[SemiBlock*blk:], a.AESOut[SemiBlock:])
			}
		}
		if round != kwpRounds {
			return 0, errcode.New(errcode.KeywrapLoopIndexCmpError)
		}
		copy(res[:SemiBlock], a.AESOut[:SemiBlock])
	} else {
		if err := e.AES.Compute(slot, engine.AESEncrypt, buf, a.AESOut[:]); err != nil {
			return 0, errcode.Wrap(errcode.KeywrapAesDataCalcFail, err)
		}
		copy(res, a.AESOut[:])
	}

	if err := e.DMA.Transfer(out, res); err != nil {
		return 0, errcode.Step(errcode.DmaCopyFail, err)
	}
	return t, nil
}

// KWPUnwrap reverses KWPWrap. The plaintext is copied to out only after the
// integrity value, length and padding have been checked. It returns the
// plaintext length.
func KWPUnwrap(e engine.Set, a *scratch.Arena, slot engine.KeySlot, in, out []byte) (n int, err error) {
	if a == nil {
		return 0, errcode.Errorf(errcode.InvalidParam, "KWP unwrap: missing arena")
	}
	t := len(in)
	if t < 2*SemiBlock || t%SemiBlock != 0 || t > KWPMaxOutput {
		return 0, errcode.Errorf(errcode.InvalidParam, "KWP unwrap: bad wrapped length %d", t)
	}

	defer func() {
		err = errcode.Update(err, zeroizeKWP(a))
	}()

	buf := a.KWP[:t]
	res := a.KWPOut[:t]
	if err := e.DMA.Transfer(buf, in); err != nil {
		return 0, errcode.Step(errcode.DmaCopyFail, err)
	}

	maxRounds := t/SemiBlock - 1
	if t > 2*SemiBlock {
		copy(a.AESIn[:SemiBlock], buf[:SemiBlock])
		round := kwpRounds - 1
		for ; round >= 0; round-- {
			src := res
			if round == kwpRounds-1 {
				src = buf
			}
			for blk := maxRounds; blk >= 1; blk-- {
				copy(a.AESIn[SemiBlock:], src[SemiBlock*blk:SemiBlock*(blk+1)])
				tweak(a.AESIn[:SemiBlock], maxRounds*round+blk)
				if err := e.AES.Compute(slot, engine.AESDecrypt, a.AESIn[:], a.AESOut[:]); err != nil {
					return 0, errcode.Wrap(errcode.KeywrapAesDataCalcFail, err)
				}
				copy(a.AESIn[:SemiBlock], a.AESOut[:SemiBlock])
				copy(res[SemiBlock*blk:], a.AESOut[SemiBlock:])
			}
		}
		if round != -1 {
			return 0, errcode.New(errcode.KeywrapLoopIndexCmpError)
		}
		copy(res[:SemiBlock], a.AESOut[:SemiBlock])
	} else {
		if err := e.AES.Compute(slot, engine.AESDecrypt, buf, a.AESOut[:]); err != nil {
			return 0, errcode.Wrap(errcode.KeywrapAesDataCalcFail, err)
		}
		copy(res, a.AESOut[:])
	}

	if !fih.Equal(res[:4], icv[:]) {
		return 0, errcode.New(errcode.KeywrapIcvCmpFail)
	}
	mli := int64(binary.BigEndian.Uint32(res[4:8]))
	padLen := int64(SemiBlock*maxRounds) - mli
	if padLen < 0 || padLen > maxPadLen {
		return 0, errcode.Errorf(errcode.KeywrapInvalidPadLen, "pad length %d", padLen)
	}
	n = int(mli)
	var acc byte
	i := 0
	for ; i < int(padLen); i++ {
		acc |= res[SemiBlock+n+i]
	}
	if acc != 0 || i != int(padLen) {
		return 0, errcode.New(errcode.KeywrapInvalidPadValue)
	}

	if len(out) < n {
		return 0, errcode.Errorf(errcode.KeywrapInvalidOutputBufLen, "output of %d bytes, need %d", len(out), n)
	}
	if err := e.DMA.Transfer(out, res[SemiBlock:SemiBlock+n]); err != nil {
		return 0, errcode.Step(errcode.DmaCopyFail, err)
	}
	return n, nil
}
