// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package soft

import (
	"github.com/google/tink/go/subtle/random"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// TRNG draws random bytes from the operating system.
type TRNG struct{}

// GetRandomNumbers fills buf.
func (r *TRNG) GetRandomNumbers(buf []byte) error {
	if len(buf) == 0 {
		return errcode.Errorf(errcode.RandGenError, "empty buffer")
	}
	rnd := random.GetRandomBytes(uint32(len(buf)))
	if len(rnd) != len(buf) {
		return errcode.Errorf(errcode.RandGenError, "short read %d of %d", len(rnd), len(buf))
	}
	copy(buf, rnd)
	clear(rnd)
	return nil
}
