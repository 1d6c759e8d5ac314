// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/keystore"
	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
)

// toStatus converts err into a gRPC status error. Coded errors keep their
// numeric code in the message, see `api.ErrCode`. Integrity failures only
// report their outer code.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, connector.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, keystore.ErrExists):
		return status.Error(codes.AlreadyExists, err.Error())
	}

	c := errcode.CodeOf(err)
	if c == errcode.Unknown {
		return status.Errorf(codes.Internal, "%v", err)
	}
	gc := c.GRPC()
	if gc == codes.FailedPrecondition {
		return status.Error(gc, api.FormatCode(c))
	}
	return status.Errorf(gc, "%s: %v", api.FormatCode(c), err)
}
