// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

func TestHashMode(t *testing.T) {
	tests := []struct {
		name string
		mode HashMode
		size int
	}{
		{"sha2-256", SHA2_256, 32},
		{"sha2-384", SHA2_384, 48},
		{"sha2-512", SHA2_512, 64},
		{"sha3-256", SHA3_256, 32},
		{"sha3-384", SHA3_384, 48},
		{"sha3-512", SHA3_512, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mode.Size(); got != tt.size {
				t.Errorf("Size() = %d, want %d", got, tt.size)
			}
			if got := tt.mode.Crypto().Size(); got != tt.size {
				t.Errorf("Crypto().Size() = %d, want %d", got, tt.size)
			}
			got, err := ParseHashMode(tt.name)
			if err != nil {
				t.Fatalf("ParseHashMode(%q) = %v", tt.name, err)
			}
			if got != tt.mode {
				t.Errorf("ParseHashMode(%q) = %v, want %v", tt.name, got, tt.mode)
			}
		})
	}

	if HashModeUnknown.Valid() || HashMode(42).Valid() {
		t.Errorf("unknown modes reported valid")
	}
	if m, err := ParseHashMode("SHA3_384"); err != nil || m != SHA3_384 {
		t.Errorf("ParseHashMode(SHA3_384) = %v, %v", m, err)
	}
	if _, err := ParseHashMode("md5"); !errcode.Has(err, errcode.InvalidHashMode) {
		t.Errorf("ParseHashMode(md5) = %v, want InvalidHashMode", err)
	}
}

func TestKeyConversion(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	k := PrivateKeyFromRSA(priv)
	if k.Size() != KeySize2048 {
		t.Errorf("Size() = %d, want %d", k.Size(), KeySize2048)
	}
	if len(k.PrivateExponent) != KeySize2048 {
		t.Errorf("len(PrivateExponent) = %d, want %d", len(k.PrivateExponent), KeySize2048)
	}
	got := k.Public().RSA()
	if !got.Equal(&priv.PublicKey) {
		t.Errorf("public key mismatch: %s", cmp.Diff(priv.PublicKey.N.String(), got.N.String()))
	}
}

func TestValid(t *testing.T) {
	for _, k := range []int{KeySize2048, KeySize3072, KeySize4096} {
		if !ValidKeySize(k) {
			t.Errorf("ValidKeySize(%d) = false", k)
		}
	}
	if ValidKeySize(128) {
		t.Errorf("ValidKeySize(128) = true")
	}
	if !UserKey7.Valid() || KeySlot(8).Valid() {
		t.Errorf("KeySlot.Valid() bounds wrong")
	}
	if !AES128.Valid() || !AES256.Valid() || AESKeySize(24).Valid() {
		t.Errorf("AESKeySize.Valid() wrong")
	}
}
