// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"

	"google.golang.org/grpc/credentials"
)

// TokenCredentials attaches an operator ID and token to every call.
type TokenCredentials struct {
	OperatorID string
	Token      string
	// Secure refuses to send the token over an insecure channel.
	Secure bool
}

var _ credentials.PerRPCCredentials = TokenCredentials{}

func (c TokenCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		OperatorIDKey:    c.OperatorID,
		AuthorizationKey: c.Token,
	}, nil
}

func (c TokenCredentials) RequireTransportSecurity() bool {
	return c.Secure
}
