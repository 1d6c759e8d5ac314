// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	kwp "github.com/google/tink/go/kwp/subtle"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/engine/soft"
	ts "github.com/lowRISC/asu-keywrap/src/asu/engine/testutils"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

const testSlot = engine.UserKey2

// kwpEngines returns software engines with key loaded into testSlot.
func kwpEngines(t *testing.T, key []byte) engine.Set {
	t.Helper()
	e := soft.NewSet(soft.Options{})
	ts.Check(t, e.AES.WriteKey(testSlot, key))
	return e
}

// rawWrap applies the RFC 3394 wrapping function W to block, which already
// carries its 8-byte header. It lets tests build wrapped blocks with
// arbitrary headers and padding.
func rawWrap(b cipher.Block, block []byte) []byte {
	out := append([]byte(nil), block...)
	if len(out) == 16 {
		b.Encrypt(out, out)
		return out
	}
	n := len(out)/8 - 1
	var buf [16]byte
	copy(buf[:8], out[:8])
	for j := 0; j < 6; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[8:], out[8*i:8*i+8])
			b.Encrypt(buf[:], buf[:])
			v := binary.BigEndian.Uint64(buf[:8]) ^ uint64(n*j+i)
			binary.BigEndian.PutUint64(buf[:8], v)
			copy(out[8*i:], buf[8:])
		}
	}
	copy(out[:8], buf[:8])
	return out
}

func header(mli int) []byte {
	h := append([]byte(nil), icv[:]...)
	return binary.BigEndian.AppendUint32(h, uint32(mli))
}

func TestKWPRFC5649Vectors(t *testing.T) {
	kek, _ := hex.DecodeString("5840df6e29b02af1ab493b705bf16ea1ae8338f4dcc176a8")
	tests := []struct {
		name    string
		key     string
		wrapped string
	}{
		{
			name:    "20 bytes",
			key:     "c37b7e6492584340bed12207808941155068f738",
			wrapped: "138bdeaa9b8fa7fc61f97742e72248ee5ae6ae5360d1ae6a5f54f373fa543b6a",
		},
		{
			name:    "7 bytes",
			key:     "466f7250617369",
			wrapped: "afbeb0f07dfbf5419200f2ccb50bb24f",
		},
	}
	e := kwpEngines(t, kek)
	a := new(scratch.Arena)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, _ := hex.DecodeString(tt.key)
			want, _ := hex.DecodeString(tt.wrapped)

			out := make([]byte, KWPMaxOutput)
			n, err := KWPWrap(e, a, testSlot, key, out)
			ts.Check(t, err)
			if diff := cmp.Diff(want, out[:n]); diff != "" {
				t.Errorf("KWPWrap() mismatch (-want +got):\n%s", diff)
			}

			back := make([]byte, len(key))
			n, err = KWPUnwrap(e, a, testSlot, want, back)
			ts.Check(t, err)
			if diff := cmp.Diff(key, back[:n]); diff != "" {
				t.Errorf("KWPUnwrap() mismatch (-want +got):\n%s", diff)
			}
			if *a != (scratch.Arena{}) {
				t.Errorf("scratch arena not zeroized")
			}
		})
	}
}

func TestKWPMatchesTink(t *testing.T) {
	for _, keyLen := range []int{16, 32} {
		key := make([]byte, keyLen)
		rand.Read(key)
		e := kwpEngines(t, key)
		a := new(scratch.Arena)
		tink, err := kwp.NewKWP(key)
		ts.Check(t, err)

		for _, n := range []int{16, 17, 23, 24, 31, 32, 100, 255, 256, KWPMaxInput} {
			t.Run(fmt.Sprintf("aes%d/%d", keyLen*8, n), func(t *testing.T) {
				msg := make([]byte, n)
				rand.Read(msg)

				out := make([]byte, KWPMaxOutput)
				got, err := KWPWrap(e, a, testSlot, msg, out)
				ts.Check(t, err)
				want, err := tink.Wrap(msg)
				ts.Check(t, err)
				if diff := cmp.Diff(want, out[:got]); diff != "" {
					t.Fatalf("KWPWrap() differs from tink (-want +got):\n%s", diff)
				}

				back := make([]byte, n)
				m, err := KWPUnwrap(e, a, testSlot, want, back)
				ts.Check(t, err)
				if !bytes.Equal(back[:m], msg) {
					t.Errorf("KWPUnwrap(tink output) = %x, want %x", back[:m], msg)
				}
			})
		}
	}
}

func TestKWPRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	rand.Read(key)
	e := kwpEngines(t, key)
	a := new(scratch.Arena)

	for n := 1; n <= KWPMaxInput; n += 7 {
		msg := make([]byte, n)
		rand.Read(msg)
		out := make([]byte, KWPMaxOutput)
		w, err := KWPWrap(e, a, testSlot, msg, out)
		ts.Check(t, err)
		if w != WrappedLen(n) {
			t.Fatalf("KWPWrap(%d) = %d bytes, want %d", n, w, WrappedLen(n))
		}
		back := make([]byte, n)
		m, err := KWPUnwrap(e, a, testSlot, out[:w], back)
		ts.Check(t, err)
		if !bytes.Equal(back[:m], msg) {
			t.Fatalf("round trip of %d bytes failed", n)
		}
	}
}

func TestWrappedLen(t *testing.T) {
	tests := []struct {
		n, pad, wrapped int
	}{
		{1, 7, 16},
		{8, 0, 16},
		{9, 7, 24},
		{16, 0, 24},
		{31, 1, 40},
		{512, 0, 520},
	}
	for _, tt := range tests {
		if got := PadLen(tt.n); got != tt.pad {
			t.Errorf("PadLen(%d) = %d, want %d", tt.n, got, tt.pad)
		}
		if got := WrappedLen(tt.n); got != tt.wrapped {
			t.Errorf("WrappedLen(%d) = %d, want %d", tt.n, got, tt.wrapped)
		}
	}
}

func TestKWPUnwrapIntegrity(t *testing.T) {
	key := make([]byte, 16)
	rand.Read(key)
	block, err := aes.NewCipher(key)
	ts.Check(t, err)
	e := kwpEngines(t, key)
	a := new(scratch.Arena)

	msg := []byte("twenty byte secret!!")
	good := make([]byte, KWPMaxOutput)
	n, err := KWPWrap(e, a, testSlot, msg, good)
	ts.Check(t, err)
	good = good[:n]

	flipped := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0x01
		return b
	}
	short := append(header(5), 1, 2, 3, 4, 5, 0, 0, 0)
	longer := append(header(20), append(bytes.Repeat([]byte{7}, 20), 0, 0, 0, 0)...)

	tests := []struct {
		name string
		in   []byte
		out  int
		want errcode.Code
	}{
		{"icv byte", flipped(0), 64, errcode.KeywrapIcvCmpFail},
		{"last byte", flipped(n - 1), 64, errcode.KeywrapIcvCmpFail},
		{"bad icv", rawWrap(block, append([]byte{0xA6, 0x59, 0x59, 0xA7, 0, 0, 0, 5}, 1, 2, 3, 4, 5, 0, 0, 0)), 64, errcode.KeywrapIcvCmpFail},
		{"pad value single", rawWrap(block, append(header(5), 1, 2, 3, 4, 5, 0, 9, 0)), 64, errcode.KeywrapInvalidPadValue},
		{"pad value chained", rawWrap(block, append(header(20), append(bytes.Repeat([]byte{7}, 20), 0, 0, 1, 0)...)), 64, errcode.KeywrapInvalidPadValue},
		{"mli zero", rawWrap(block, append(header(0), make([]byte, 8)...)), 64, errcode.KeywrapInvalidPadLen},
		{"mli too long", rawWrap(block, append(header(9), make([]byte, 8)...)), 64, errcode.KeywrapInvalidPadLen},
		{"mli too short", rawWrap(block, append(header(8), make([]byte, 16)...)), 64, errcode.KeywrapInvalidPadLen},
		{"output too small", rawWrap(block, longer), 19, errcode.KeywrapInvalidOutputBufLen},
		{"not semi-block aligned", good[:n-1], 64, errcode.InvalidParam},
		{"too short", good[:8], 64, errcode.InvalidParam},
		{"too long", make([]byte, KWPMaxOutput+8), 64, errcode.InvalidParam},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := bytes.Repeat([]byte{0xEE}, tt.out)
			_, err := KWPUnwrap(e, a, testSlot, tt.in, out)
			if errcode.CodeOf(err) != tt.want {
				t.Fatalf("KWPUnwrap() = %v, want %v", err, tt.want)
			}
			if !bytes.Equal(out, bytes.Repeat([]byte{0xEE}, tt.out)) {
				t.Errorf("output written on failure")
			}
			if *a != (scratch.Arena{}) {
				t.Errorf("scratch arena not zeroized")
			}
		})
	}

	// The hand-built blocks are accepted once they are well formed.
	for _, blk := range [][]byte{short, longer} {
		out := make([]byte, 64)
		_, err := KWPUnwrap(e, a, testSlot, rawWrap(block, blk), out)
		ts.Check(t, err)
	}
}

func TestKWPEngineFaults(t *testing.T) {
	key := make([]byte, 16)
	rand.Read(key)
	inner := kwpEngines(t, key)
	a := new(scratch.Arena)

	r := ts.NewRecorder(inner)
	r.FailOn(ts.AESCompute, 3, errcode.New(errcode.InvalidParam))
	_, err := KWPWrap(r.Set(), a, testSlot, make([]byte, 40), make([]byte, KWPMaxOutput))
	if errcode.CodeOf(err) != errcode.KeywrapAesDataCalcFail {
		t.Errorf("KWPWrap() = %v, want KeywrapAesDataCalcFail", err)
	}
	if *a != (scratch.Arena{}) {
		t.Errorf("scratch arena not zeroized")
	}

	r.Reset()
	_, err = KWPWrap(r.Set(), a, testSlot, make([]byte, 40), make([]byte, 10))
	if errcode.CodeOf(err) != errcode.DmaCopyFail {
		t.Errorf("KWPWrap(short out) = %v, want DmaCopyFail", err)
	}
	// 40 bytes: 6 rounds over 5 semi-blocks.
	if got := r.Calls(ts.AESCompute); got != 30 {
		t.Errorf("AES calls = %d, want 30", got)
	}
}
