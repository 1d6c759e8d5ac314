// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package api defines the asu.KeyWrapService gRPC interface: its messages,
// the CBOR codec they travel in, the service descriptor and a client.
//
// GetVersion uses the default protobuf codec so generic gRPC tooling can
// query it; every other method is CBOR encoded.
package api

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/golang/protobuf/ptypes/wrappers"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "asu.KeyWrapService"

// KeyWrapServiceServer is the server API for asu.KeyWrapService.
type KeyWrapServiceServer interface {
	CreateKey(context.Context, *CreateKeyRequest) (*CreateKeyResponse, error)
	GetPublicKey(context.Context, *GetPublicKeyRequest) (*GetPublicKeyResponse, error)
	KeyWrap(context.Context, *KeyWrapRequest) (*KeyWrapResponse, error)
	KeyUnwrap(context.Context, *KeyUnwrapRequest) (*KeyUnwrapResponse, error)
	OaepEncrypt(context.Context, *OaepEncryptRequest) (*OaepEncryptResponse, error)
	OaepDecrypt(context.Context, *OaepDecryptRequest) (*OaepDecryptResponse, error)
	PssSign(context.Context, *PssSignRequest) (*PssSignResponse, error)
	PssVerify(context.Context, *PssVerifyRequest) (*PssVerifyResponse, error)
	GetVersion(context.Context, *empty.Empty) (*wrappers.StringValue, error)
}

// unary builds the method descriptor of a unary RPC.
func unary[Req, Resp any](name string, call func(KeyWrapServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KeyWrapServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(KeyWrapServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for asu.KeyWrapService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeyWrapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateKey", KeyWrapServiceServer.CreateKey),
		unary("GetPublicKey", KeyWrapServiceServer.GetPublicKey),
		unary("KeyWrap", KeyWrapServiceServer.KeyWrap),
		unary("KeyUnwrap", KeyWrapServiceServer.KeyUnwrap),
		unary("OaepEncrypt", KeyWrapServiceServer.OaepEncrypt),
		unary("OaepDecrypt", KeyWrapServiceServer.OaepDecrypt),
		unary("PssSign", KeyWrapServiceServer.PssSign),
		unary("PssVerify", KeyWrapServiceServer.PssVerify),
		unary("GetVersion", KeyWrapServiceServer.GetVersion),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "asu/keywrap.cbor",
}

// RegisterKeyWrapServiceServer registers srv with s.
func RegisterKeyWrapServiceServer(s grpc.ServiceRegistrar, srv KeyWrapServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// KeyWrapServiceClient is the client API for asu.KeyWrapService.
type KeyWrapServiceClient interface {
	CreateKey(ctx context.Context, in *CreateKeyRequest, opts ...grpc.CallOption) (*CreateKeyResponse, error)
	GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*GetPublicKeyResponse, error)
	KeyWrap(ctx context.Context, in *KeyWrapRequest, opts ...grpc.CallOption) (*KeyWrapResponse, error)
	KeyUnwrap(ctx context.Context, in *KeyUnwrapRequest, opts ...grpc.CallOption) (*KeyUnwrapResponse, error)
	OaepEncrypt(ctx context.Context, in *OaepEncryptRequest, opts ...grpc.CallOption) (*OaepEncryptResponse, error)
	OaepDecrypt(ctx context.Context, in *OaepDecryptRequest, opts ...grpc.CallOption) (*OaepDecryptResponse, error)
	PssSign(ctx context.Context, in *PssSignRequest, opts ...grpc.CallOption) (*PssSignResponse, error)
	PssVerify(ctx context.Context, in *PssVerifyRequest, opts ...grpc.CallOption) (*PssVerifyResponse, error)
	GetVersion(ctx context.Context, in *empty.Empty, opts ...grpc.CallOption) (*wrappers.StringValue, error)
}

type keyWrapServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewKeyWrapServiceClient returns a client using cc.
func NewKeyWrapServiceClient(cc grpc.ClientConnInterface) KeyWrapServiceClient {
	return &keyWrapServiceClient{cc}
}

// invoke calls a CBOR encoded method.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *keyWrapServiceClient) CreateKey(ctx context.Context, in *CreateKeyRequest, opts ...grpc.CallOption) (*CreateKeyResponse, error) {
	return invoke[CreateKeyResponse](ctx, c.cc, "CreateKey", in, opts)
}

func (c *keyWrapServiceClient) GetPublicKey(ctx context.Context, in *GetPublicKeyRequest, opts ...grpc.CallOption) (*GetPublicKeyResponse, error) {
	return invoke[GetPublicKeyResponse](ctx, c.cc, "GetPublicKey", in, opts)
}

func (c *keyWrapServiceClient) KeyWrap(ctx context.Context, in *KeyWrapRequest, opts ...grpc.CallOption) (*KeyWrapResponse, error) {
	return invoke[KeyWrapResponse](ctx, c.cc, "KeyWrap", in, opts)
}

func (c *keyWrapServiceClient) KeyUnwrap(ctx context.Context, in *KeyUnwrapRequest, opts ...grpc.CallOption) (*KeyUnwrapResponse, error) {
	return invoke[KeyUnwrapResponse](ctx, c.cc, "KeyUnwrap", in, opts)
}

func (c *keyWrapServiceClient) OaepEncrypt(ctx context.Context, in *OaepEncryptRequest, opts ...grpc.CallOption) (*OaepEncryptResponse, error) {
	return invoke[OaepEncryptResponse](ctx, c.cc, "OaepEncrypt", in, opts)
}

func (c *keyWrapServiceClient) OaepDecrypt(ctx context.Context, in *OaepDecryptRequest, opts ...grpc.CallOption) (*OaepDecryptResponse, error) {
	return invoke[OaepDecryptResponse](ctx, c.cc, "OaepDecrypt", in, opts)
}

func (c *keyWrapServiceClient) PssSign(ctx context.Context, in *PssSignRequest, opts ...grpc.CallOption) (*PssSignResponse, error) {
	return invoke[PssSignResponse](ctx, c.cc, "PssSign", in, opts)
}

func (c *keyWrapServiceClient) PssVerify(ctx context.Context, in *PssVerifyRequest, opts ...grpc.CallOption) (*PssVerifyResponse, error) {
	return invoke[PssVerifyResponse](ctx, c.cc, "PssVerify", in, opts)
}

// GetVersion uses the protobuf codec.
func (c *keyWrapServiceClient) GetVersion(ctx context.Context, in *empty.Empty, opts ...grpc.CallOption) (*wrappers.StringValue, error) {
	out := new(wrappers.StringValue)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetVersion", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
