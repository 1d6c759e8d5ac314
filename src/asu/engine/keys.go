// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/rsa"
	"math/big"
)

// RSAPublicKey holds the big-endian modulus and public exponent.
type RSAPublicKey struct {
	Modulus  []byte
	Exponent []byte
}

// Size returns the key size in bytes.
func (k *RSAPublicKey) Size() int {
	return len(k.Modulus)
}

// RSA returns k as a crypto/rsa public key.
func (k *RSAPublicKey) RSA() *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(k.Modulus),
		E: int(new(big.Int).SetBytes(k.Exponent).Int64()),
	}
}

// RSAPrivateKey holds the big-endian modulus and exponents. PrivateExponent
// is left-padded to the modulus length.
type RSAPrivateKey struct {
	Modulus         []byte
	PublicExponent  []byte
	PrivateExponent []byte
}

// Size returns the key size in bytes.
func (k *RSAPrivateKey) Size() int {
	return len(k.Modulus)
}

// Public returns the public half of k.
func (k *RSAPrivateKey) Public() *RSAPublicKey {
	return &RSAPublicKey{
		Modulus:  k.Modulus,
		Exponent: k.PublicExponent,
	}
}

// PublicKeyFromRSA converts a crypto/rsa public key.
func PublicKeyFromRSA(pub *rsa.PublicKey) *RSAPublicKey {
	size := (pub.N.BitLen() + 7) / 8
	return &RSAPublicKey{
		Modulus:  pub.N.FillBytes(make([]byte, size)),
		Exponent: big.NewInt(int64(pub.E)).Bytes(),
	}
}

// PrivateKeyFromRSA converts a crypto/rsa private key.
func PrivateKeyFromRSA(priv *rsa.PrivateKey) *RSAPrivateKey {
	pub := PublicKeyFromRSA(&priv.PublicKey)
	return &RSAPrivateKey{
		Modulus:         pub.Modulus,
		PublicExponent:  pub.Exponent,
		PrivateExponent: priv.D.FillBytes(make([]byte, pub.Size())),
	}
}
