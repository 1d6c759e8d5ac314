// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package errcode defines the numeric status codes returned by the ASU
// padding and key wrap engines, and an error type that carries them.
package errcode

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code is an opaque numeric status reported to callers.
type Code uint32

const (
	OK Code = 0x00

	// Parameter validation and mode failures.
	InvalidParam        Code = 0x01
	InvalidHashMode     Code = 0x02
	InvalidKeySize      Code = 0x03
	KeywrapInvalidParam Code = 0x04

	// The digest engine is still absorbing a chunked input; the caller
	// re-invokes the same operation later.
	CmdInProgress Code = 0x05

	// Engine failures.
	DmaCopyFail       Code = 0x10
	MemCopyFail       Code = 0x11
	ZeroizeMemsetFail Code = 0x12
	DigestCalcFail    Code = 0x13
	RandGenError      Code = 0x14
	AesWriteKeyFailed Code = 0x15
	ResourceBusy      Code = 0x16

	// OAEP.
	OaepInvalidLen         Code = 0x20
	OaepHashCmpFail        Code = 0x21
	OaepOneSepCmpFail      Code = 0x22
	OaepLeadingByteCmpFail Code = 0x23
	OaepEncryptError       Code = 0x24
	OaepDecryptError       Code = 0x25
	OaepEncodeError        Code = 0x26
	OaepDecodeError        Code = 0x27
	MaskGenDataBlockError  Code = 0x28
	MaskGenSeedBufferError Code = 0x29

	// PSS.
	PssInvalidSaltLen        Code = 0x30
	PssInvalidLen            Code = 0x31
	PssNoSaltNoRandomString  Code = 0x32
	PssEncryptError          Code = 0x33
	PssDecryptError          Code = 0x34
	PssRightMostCmpFail      Code = 0x35
	PssLeftMostBitCmpFail    Code = 0x36
	PssDbLeftMostByteCmpFail Code = 0x37
	PssDbByteOneCmpFail      Code = 0x38
	PssHashCmpFail           Code = 0x39
	LoopIndexCmpError        Code = 0x3A

	// AES-KWP and the hybrid orchestrator.
	KeywrapIcvCmpFail           Code = 0x40
	KeywrapInvalidPadLen        Code = 0x41
	KeywrapInvalidPadValue      Code = 0x42
	KeywrapInvalidOutputBufLen  Code = 0x43
	KeywrapAesKeyClearFail      Code = 0x44
	KeywrapAesWrappedKeyError   Code = 0x45
	KeywrapAesUnwrappedKeyError Code = 0x46
	KeywrapAesDataCalcFail      Code = 0x47
	KeywrapLoopIndexCmpError    Code = 0x48
	KeywrapSelfTestFail         Code = 0x49
)

var names = map[Code]string{
	OK:                          "OK",
	InvalidParam:                "InvalidParam",
	InvalidHashMode:             "InvalidHashMode",
	InvalidKeySize:              "InvalidKeySize",
	KeywrapInvalidParam:         "KeywrapInvalidParam",
	CmdInProgress:               "CmdInProgress",
	DmaCopyFail:                 "DmaCopyFail",
	MemCopyFail:                 "MemCopyFail",
	ZeroizeMemsetFail:           "ZeroizeMemsetFail",
	DigestCalcFail:              "DigestCalcFail",
	RandGenError:                "RandGenError",
	AesWriteKeyFailed:           "AesWriteKeyFailed",
	ResourceBusy:                "ResourceBusy",
	OaepInvalidLen:              "OaepInvalidLen",
	OaepHashCmpFail:             "OaepHashCmpFail",
	OaepOneSepCmpFail:           "OaepOneSepCmpFail",
	OaepLeadingByteCmpFail:      "OaepLeadingByteCmpFail",
	OaepEncryptError:            "OaepEncryptError",
	OaepDecryptError:            "OaepDecryptError",
	OaepEncodeError:             "OaepEncodeError",
	OaepDecodeError:             "OaepDecodeError",
	MaskGenDataBlockError:       "MaskGenDataBlockError",
	MaskGenSeedBufferError:      "MaskGenSeedBufferError",
	PssInvalidSaltLen:           "PssInvalidSaltLen",
	PssInvalidLen:               "PssInvalidLen",
	PssNoSaltNoRandomString:     "PssNoSaltNoRandomString",
	PssEncryptError:             "PssEncryptError",
	PssDecryptError:             "PssDecryptError",
	PssRightMostCmpFail:         "PssRightMostCmpFail",
	PssLeftMostBitCmpFail:       "PssLeftMostBitCmpFail",
	PssDbLeftMostByteCmpFail:    "PssDbLeftMostByteCmpFail",
	PssDbByteOneCmpFail:         "PssDbByteOneCmpFail",
	PssHashCmpFail:              "PssHashCmpFail",
	LoopIndexCmpError:           "LoopIndexCmpError",
	KeywrapIcvCmpFail:           "KeywrapIcvCmpFail",
	KeywrapInvalidPadLen:        "KeywrapInvalidPadLen",
	KeywrapInvalidPadValue:      "KeywrapInvalidPadValue",
	KeywrapInvalidOutputBufLen:  "KeywrapInvalidOutputBufLen",
	KeywrapAesKeyClearFail:      "KeywrapAesKeyClearFail",
	KeywrapAesWrappedKeyError:   "KeywrapAesWrappedKeyError",
	KeywrapAesUnwrappedKeyError: "KeywrapAesUnwrappedKeyError",
	KeywrapAesDataCalcFail:      "KeywrapAesDataCalcFail",
	KeywrapLoopIndexCmpError:    "KeywrapLoopIndexCmpError",
	KeywrapSelfTestFail:         "KeywrapSelfTestFail",
	Unknown:                     "Unknown",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(0x%02X)", uint32(c))
}

// GRPC maps a status code onto the closest gRPC code.
func (c Code) GRPC() codes.Code {
	switch c {
	case OK:
		return codes.OK
	case InvalidParam, InvalidHashMode, InvalidKeySize, KeywrapInvalidParam,
		OaepInvalidLen, PssInvalidSaltLen, PssInvalidLen, PssNoSaltNoRandomString,
		KeywrapInvalidOutputBufLen:
		return codes.InvalidArgument
	case CmdInProgress, ResourceBusy:
		return codes.Unavailable
	case OaepHashCmpFail, OaepOneSepCmpFail, OaepLeadingByteCmpFail, OaepDecodeError,
		PssRightMostCmpFail, PssLeftMostBitCmpFail, PssDbLeftMostByteCmpFail,
		PssDbByteOneCmpFail, PssHashCmpFail,
		KeywrapIcvCmpFail, KeywrapInvalidPadLen, KeywrapInvalidPadValue,
		KeywrapAesUnwrappedKeyError:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// Error is an error carrying a status code and an optional cause.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("asu status 0x%02X (%s)", uint32(e.Code), e.Code)
	}
	return fmt.Sprintf("asu status 0x%02X (%s): %v", uint32(e.Code), e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, New(c)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New returns an error for code c.
func New(c Code) error {
	return &Error{Code: c}
}

// Errorf returns an error for code c with a formatted cause.
func Errorf(c Code, format string, a ...interface{}) error {
	return &Error{Code: c, Err: fmt.Errorf(format, a...)}
}

// Wrap returns an error for code c wrapping err. A nil err yields New(c).
func Wrap(c Code, err error) error {
	return &Error{Code: c, Err: err}
}

// CodeOf returns the outermost status code of err. nil maps to OK and errors
// that carry no code map to Unknown.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// Unknown is reported for errors that carry no status code.
const Unknown Code = 0xFF

// Has reports whether c appears anywhere in the chain of err.
func Has(err error, c Code) bool {
	return errors.Is(err, &Error{Code: c})
}

// Update returns the status an epilogue should report: the first failure
// wins, and a cleanup failure only surfaces when everything before it
// succeeded.
func Update(status, cleanup error) error {
	if status != nil {
		return status
	}
	return cleanup
}

// Step reports a failed sub-step under c. Errors whose outermost code is
// already c, and CmdInProgress, pass through unchanged so the dispatcher can
// still see a pending digest.
func Step(c Code, err error) error {
	if code := CodeOf(err); code == c || code == CmdInProgress {
		return err
	}
	return Wrap(c, err)
}
