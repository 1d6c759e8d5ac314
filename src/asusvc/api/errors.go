// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"strings"

	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

const codePrefix = "asu status 0x"

// FormatCode returns the status message prefix carrying c.
func FormatCode(c errcode.Code) string {
	return fmt.Sprintf("%s%02X (%s)", codePrefix, uint32(c), c)
}

// ErrCode extracts the errcode carried by a status error returned by the
// service. It returns errcode.OK for nil and errcode.Unknown when the status
// carries no code.
func ErrCode(err error) errcode.Code {
	if err == nil {
		return errcode.OK
	}
	st, ok := status.FromError(err)
	if !ok {
		return errcode.Unknown
	}
	msg := st.Message()
	if !strings.HasPrefix(msg, codePrefix) {
		return errcode.Unknown
	}
	var v uint32
	if _, err := fmt.Sscanf(msg[len(codePrefix):], "%x", &v); err != nil {
		return errcode.Unknown
	}
	return errcode.Code(v)
}
