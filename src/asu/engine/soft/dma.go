// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package soft

import (
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// DMA copies between buffers.
type DMA struct{}

// Transfer copies all of src into the front of dst.
func (d *DMA) Transfer(dst, src []byte) error {
	if len(dst) < len(src) {
		return errcode.Errorf(errcode.DmaCopyFail, "destination holds %d bytes, need %d", len(dst), len(src))
	}
	copy(dst, src)
	return nil
}
