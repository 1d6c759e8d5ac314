// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"encoding/hex"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/fih"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

const katInputLen = 31

var (
	katInput = [katInputLen]byte{
		0xff, 0xe9, 0x52, 0x60, 0x48, 0x34, 0xbf, 0xf8, 0x99, 0xe6, 0x36, 0x58, 0xf3,
		0x42, 0x46, 0x81, 0x5c, 0x91, 0x59, 0x7e, 0xb4, 0x0a, 0x21, 0x72, 0x9e, 0x0a,
		0x8a, 0x95, 0x9b, 0x61, 0xf2,
	}
	katLabel = []byte("ASUFW")

	// 2048-bit known-answer key, e = 65537.
	katModulus = mustHex("" +
		"aefec693f10601471728a2496fa31d8cdbf9b35767ef31cdac131c20e09d5555" +
		"fd0c30b78328a54c77c0851170b44afc98df7569d8f9216a65aa3084cf2ecb6c" +
		"91d56a0d46e737b03f1f71d95d0bd65c61cbd28a96b97e1ba93369d3ba50a110" +
		"fe531f5c63b1f63bb0e8830b5f3000351fa34e7a3ee151ae7c62af06995e1473" +
		"f57c3540bbb7a33c13e0927e031673ad78260b13292f5f2940d8bf5e73fa552d" +
		"3eab7f3cb358a59fa83c125827c5e30b11cd3f1daa98770f6d9926e27328318e" +
		"9c4051c85852a107adaf36b8c80849d7ce287fe3b2f1b1e96a5943dcd84d68c0" +
		"1121eeedb00ba824e0d536c2fd3e35c337c4a284a4c2d6ecaefffbc5d105d223")
	katPrivateExponent = mustHex("" +
		"0aa81b41b120d37d17ccf2ad142e53c35b360694e11070f0fc74a176e316d1b6" +
		"8dd56b3611b7acf14e2d9c2ce6b72405e3ed5fc215637e8473327d07e9720913" +
		"508235961f663f3eed6925cebddad5b004889c06b28d133fedfae28bf141adbd" +
		"522f8fae59a7e1bddad51dfdd84b1d081f281bc45805f2aa748ab1ebedf50bbb" +
		"b6168d2be381c523c834376de0e6f3a857afa2ab74aea1336e810b732339e2cb" +
		"d6a0e5bf6d4a23101b5baa6eda76117cb5fbcae2f8b55410295c30190d09859a" +
		"2dfb7ab7a2fbcba78308b28781dd6b5291c1104d1d55a15eacfc3c6a1c0fdc55" +
		"640f562c372ff7e690e899e30634f8f2e2901c5cd9a8457240945c3c283244d1")
	katPublicExponent = []byte{0x01, 0x00, 0x01}
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SelfTestKey returns the fixed key used by SelfTest.
func SelfTestKey() *engine.RSAPrivateKey {
	return &engine.RSAPrivateKey{
		Modulus:         katModulus,
		PublicExponent:  katPublicExponent,
		PrivateExponent: katPrivateExponent,
	}
}

// SelfTest wraps a fixed vector with AES-128 and SHA2-256 under a fixed
// 2048-bit key, unwraps it again and compares the result. Any failure is
// reported as KeywrapSelfTestFail wrapping the cause.
func SelfTest(e engine.Set, a *scratch.Arena) (err error) {
	var (
		wrapped [engine.KeySize2048 + katInputLen + 1 + SemiBlock]byte
		out     [katInputLen]byte
	)
	defer func() {
		err = errcode.Update(err, fih.Zeroize(wrapped[:], out[:]))
	}()

	key := SelfTestKey()
	n, err := Wrap(e, a, &WrapParams{
		Input:      katInput[:],
		Out:        wrapped[:],
		Key:        key.Public(),
		AESKeySize: engine.AES128,
		Label:      katLabel,
		Mode:       engine.SHA2_256,
	})
	if err != nil {
		return errcode.Wrap(errcode.KeywrapSelfTestFail, err)
	}

	m, err := Unwrap(e, a, &UnwrapParams{
		Input:      wrapped[:n],
		Out:        out[:],
		Key:        key,
		AESKeySize: engine.AES128,
		Label:      katLabel,
		Mode:       engine.SHA2_256,
	})
	if err != nil {
		return errcode.Wrap(errcode.KeywrapSelfTestFail, err)
	}
	if m != katInputLen || !fih.Equal(out[:], katInput[:]) {
		return errcode.Errorf(errcode.KeywrapSelfTestFail, "unwrapped vector mismatch")
	}
	return nil
}
