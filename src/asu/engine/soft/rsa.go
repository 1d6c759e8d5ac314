// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package soft

import (
	"math/big"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// RSA performs raw modular exponentiation with math/big.
type RSA struct{}

// PublicExp computes out = in^e mod n.
func (r *RSA) PublicExp(in, out []byte, key *engine.RSAPublicKey) error {
	if key == nil {
		return errcode.Errorf(errcode.InvalidParam, "nil public key")
	}
	return modExp(in, out, key.Modulus, key.Exponent)
}

// PrivateExp computes out = in^d mod n.
func (r *RSA) PrivateExp(in, out []byte, key *engine.RSAPrivateKey) error {
	if key == nil {
		return errcode.Errorf(errcode.InvalidParam, "nil private key")
	}
	return modExp(in, out, key.Modulus, key.PrivateExponent)
}

func modExp(in, out, modulus, exponent []byte) error {
	k := len(modulus)
	if k == 0 || len(exponent) == 0 {
		return errcode.Errorf(errcode.InvalidParam, "empty key component")
	}
	if len(in) != k || len(out) != k {
		return errcode.Errorf(errcode.InvalidParam, "operand length %d/%d, want %d", len(in), len(out), k)
	}
	n := new(big.Int).SetBytes(modulus)
	m := new(big.Int).SetBytes(in)
	if m.Cmp(n) >= 0 {
		return errcode.Errorf(errcode.InvalidParam, "operand not reduced modulo n")
	}
	c := new(big.Int).Exp(m, new(big.Int).SetBytes(exponent), n)
	c.FillBytes(out)
	return nil
}
