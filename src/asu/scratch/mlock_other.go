// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package scratch

import "errors"

var errNoMlock = errors.New("memory locking not supported on this platform")

func lock(b []byte) error {
	return errNoMlock
}

func unlock(b []byte) error {
	return nil
}
