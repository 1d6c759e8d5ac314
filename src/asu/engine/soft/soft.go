// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package soft implements the engine interfaces in software. It backs the
// command line tool, the tests and deployments without an HSM.
package soft

import (
	"github.com/lowRISC/asu-keywrap/src/asu/engine"
)

// Options configures the software engines.
type Options struct {
	// SHAChunkSize makes the digest engine absorb inputs longer than this
	// many bytes over several calls, reporting CmdInProgress in between.
	// Zero disables chunking.
	SHAChunkSize int
}

// NewSet returns a complete set of software engines.
func NewSet(opts Options) engine.Set {
	return engine.Set{
		RSA:  &RSA{},
		AES:  NewAES(),
		SHA:  NewSHA(opts.SHAChunkSize),
		TRNG: &TRNG{},
		DMA:  &DMA{},
	}
}
