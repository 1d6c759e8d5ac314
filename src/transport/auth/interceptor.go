// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/logger"
	"github.com/lowRISC/asu-keywrap/src/transport/grpconn"
)

// Metadata keys read by the interceptor.
const (
	OperatorIDKey    = "operator_id"
	AuthorizationKey = "authorization"
)

// Interceptor checks operator tokens and method permissions.
type Interceptor struct {
	store          *Store
	enableTLS      bool
	excludeMethods []string
	log            logger.Logger
}

// NewInterceptor returns an interceptor checking callers against store. With
// enableTLS the client certificate must also match the peer address. A nil
// log discards rejections.
func NewInterceptor(store *Store, enableTLS bool, log logger.Logger) *Interceptor {
	if log == nil {
		log = (*logger.ModLogger)(nil)
	}
	return &Interceptor{
		store:          store,
		enableTLS:      enableTLS,
		excludeMethods: []string{"/GetVersion", "/grpc.health.v1.Health/Check"},
		log:            log,
	}
}

// operatorID returns the operator named in md, falling back to the peer IP.
func operatorID(ctx context.Context, md metadata.MD) string {
	if v := md.Get(OperatorIDKey); len(v) > 0 {
		return v[0]
	}
	id, _ := grpconn.ExtractClientIP(ctx)
	return id
}

func hasSuffix(s string, list []string) bool {
	for _, suffix := range list {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

// Unary authenticates and authorizes unary RPCs.
func (i *Interceptor) Unary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if err := i.authorize(ctx, info.FullMethod); err != nil {
		i.log.Warn(err, info.FullMethod)
		return nil, err
	}
	if i.enableTLS {
		return grpconn.CheckEndpointInterceptor(ctx, req, info, handler)
	}
	return handler(ctx, req)
}

func (i *Interceptor) authorize(ctx context.Context, method string) error {
	if hasSuffix(method, i.excludeMethods) {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	op, err := i.store.Find(operatorID(ctx, md))
	if err != nil {
		return err
	}
	values := md.Get(AuthorizationKey)
	if len(values) == 0 {
		return status.Errorf(codes.Unauthenticated, "authorization token is not provided")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.TokenHash), []byte(values[0])); err != nil {
		return status.Errorf(codes.Unauthenticated, "incorrect access token")
	}

	for _, m := range op.Methods {
		if strings.HasSuffix(method, "/"+m) {
			return nil
		}
	}
	return status.Errorf(codes.PermissionDenied, "operator %q may not call %s", op.ID, method)
}
