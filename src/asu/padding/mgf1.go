// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package padding

import (
	"encoding/binary"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

// MGF1 fills out with H(seed || 0) || H(seed || 1) || ..., the counter being
// a 4-byte big-endian integer, truncated to len(out).
func MGF1(sha engine.SHA, mode engine.HashMode, seed, out []byte) (err error) {
	if seed == nil || len(out) == 0 {
		return errcode.Errorf(errcode.InvalidParam, "MGF1: missing seed or output")
	}
	if !mode.Valid() {
		return errcode.Errorf(errcode.InvalidHashMode, "MGF1: hash mode %v", mode)
	}
	if len(seed) > scratch.MaxDBLen {
		return errcode.Errorf(errcode.InvalidParam, "MGF1: seed of %d bytes", len(seed))
	}

	var (
		block [scratch.MaxDBLen + 4]byte
		h     [engine.MaxHashLen]byte
	)
	defer func() {
		err = errcode.Update(err, fih.Zeroize(block[:], h[:]))
	}()

	hLen := mode.Size()
	seedLen := len(seed)
	copy(block[:], seed)

	iters := (len(out) + hLen - 1) / hLen
	done := 0
	i := 0
	for ; i < iters; i++ {
		binary.BigEndian.PutUint32(block[seedLen:], uint32(i))
		if err := digest(sha, mode, block[:seedLen+4], h[:hLen]); err != nil {
			return err
		}
		done += copy(out[done:], h[:hLen])
	}
	if i != iters || done != len(out) {
		return errcode.New(errcode.LoopIndexCmpError)
	}
	return nil
}
