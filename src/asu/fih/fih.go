// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package fih holds the fault-injection hardening helpers used by the padding
// and key wrap code.
//
// Each helper repeats a security relevant decision and fails closed when the
// repetitions disagree, so a single skipped instruction cannot turn a failure
// into a success.
package fih

import (
	"crypto/subtle"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

// Equal compares a and b in constant time, twice.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	first := subtle.ConstantTimeCompare(a, b)
	second := subtle.ConstantTimeCompare(b, a)
	return first == 1 && second == 1 && first == second
}

// Zeroize clears every buffer in bufs and reads each one back twice. A buffer
// that is not all zero afterwards yields ZeroizeMemsetFail.
func Zeroize(bufs ...[]byte) error {
	for _, b := range bufs {
		clear(b)
	}
	for _, b := range bufs {
		if !isZero(b) || !isZero(b) {
			return errcode.New(errcode.ZeroizeMemsetFail)
		}
	}
	return nil
}

func isZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}

// Twice runs the idempotent operation f two times and returns nil only when
// both runs succeed. The first failure is returned otherwise.
func Twice(f func() error) error {
	first := f()
	second := f()
	if first != nil {
		return first
	}
	if second != nil {
		return second
	}
	return nil
}

// Ok reports whether err is nil, checked twice.
func Ok(err error) bool {
	a := err == nil
	b := errcode.CodeOf(err) == errcode.OK
	return a && b
}
