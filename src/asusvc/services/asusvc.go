// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package services implements the gRPC asu.KeyWrapService server interface.
package services

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/golang/protobuf/ptypes/wrappers"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/keywrap"
	"github.com/lowRISC/asu-keywrap/src/asu/padding"
	"github.com/lowRISC/asu-keywrap/src/asu/resmgr"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/keystore"
	"github.com/lowRISC/asu-keywrap/src/logger"
	"github.com/lowRISC/asu-keywrap/src/transport/grpconn"
	"github.com/lowRISC/asu-keywrap/src/version/buildver"
)

var (
	// Engines used by operations on a caller supplied or stored public key.
	publicOps = []resmgr.Resource{resmgr.DMA, resmgr.SHA, resmgr.RSA, resmgr.TRNG}
	// Engines used to generate and seal a key pair.
	keygenOps = []resmgr.Resource{resmgr.DMA, resmgr.AES, resmgr.TRNG}
)

// Options contain configuration options for the key wrap service.
type Options struct {
	// Engines used by every operation.
	Engines engine.Set

	// Resources arbitrates the engines. A new manager is created when nil.
	Resources *resmgr.Manager

	// Pool holds the scratch arena. A new pool is created when nil.
	Pool *scratch.Pool

	// Store holds the service key pairs. Without a store only operations on
	// caller supplied public keys are available.
	Store *keystore.Store

	// Logger receives failed operations. Defaults to a console logger at
	// error level.
	Logger logger.Logger
}

// Server is the server object.
type Server struct {
	d     *Dispatcher
	store *keystore.Store
	log   logger.Logger
}

// NewKeyWrapServer returns an implementation of the KeyWrapService gRPC
// server.
func NewKeyWrapServer(opts Options) (*Server, error) {
	if opts.Resources == nil {
		opts.Resources = resmgr.New()
	}
	if opts.Pool == nil {
		opts.Pool = scratch.NewPool()
	}
	if opts.Logger == nil {
		l, err := logger.NewLogger("", logger.LogLevelError)
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}
	return &Server{
		d:     NewDispatcher(opts.Engines, opts.Resources, opts.Pool),
		store: opts.Store,
		log:   opts.Logger,
	}, nil
}

// Stats returns the dispatcher counters.
func (s *Server) Stats() Stats {
	return s.d.Stats()
}

// SelfTest runs the key wrap known answer test on the service engines.
func (s *Server) SelfTest(ctx context.Context) error {
	return s.d.Run(ctx, "selftest", resmgr.All, keywrap.SelfTest)
}

// requester names the caller of method for the resource manager.
func requester(ctx context.Context, method string) string {
	ip, err := grpconn.ExtractClientIP(ctx)
	if err != nil || ip == "" {
		return method
	}
	return method + "@" + ip
}

// fail logs err and converts it into a status error.
func (s *Server) fail(method string, err error) error {
	s.log.Error(err, method)
	return toStatus(err)
}

func toAPIKey(k *engine.RSAPublicKey) *api.PublicKey {
	return &api.PublicKey{Modulus: k.Modulus, Exponent: k.Exponent}
}

// publicKey resolves the key named by label or, when label is empty, the
// key supplied by the caller.
func (s *Server) publicKey(ctx context.Context, label string, pk *api.PublicKey) (*engine.RSAPublicKey, error) {
	if label != "" {
		if s.store == nil {
			return nil, status.Error(codes.Unimplemented, "no key store configured")
		}
		return s.store.PublicKey(ctx, label)
	}
	if pk == nil || len(pk.Modulus) == 0 || len(pk.Exponent) == 0 {
		return nil, errcode.Errorf(errcode.InvalidParam, "no key label or public key")
	}
	return &engine.RSAPublicKey{Modulus: pk.Modulus, Exponent: pk.Exponent}, nil
}

func (s *Server) record(ctx context.Context, label string) (*keystore.Record, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unimplemented, "no key store configured")
	}
	return s.store.Get(ctx, label)
}

// withPrivateKey unseals rec inside an operation and clears the private
// exponent once fn returns.
func withPrivateKey(rec *keystore.Record, fn func(e engine.Set, a *scratch.Arena, key *engine.RSAPrivateKey) error) Op {
	return func(e engine.Set, a *scratch.Arena) error {
		key, err := rec.PrivateKey(e, a)
		if err != nil {
			return err
		}
		defer clear(key.PrivateExponent)
		return fn(e, a, key)
	}
}

// passThrough keeps status errors produced by the handlers and converts
// everything else.
func (s *Server) passThrough(method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return s.fail(method, err)
}

// CreateKey generates a key pair and stores it under the requested label.
func (s *Server) CreateKey(ctx context.Context, req *api.CreateKeyRequest) (*api.CreateKeyResponse, error) {
	if s.store == nil {
		return nil, status.Error(codes.Unimplemented, "no key store configured")
	}
	var pub *engine.RSAPublicKey
	err := s.d.Run(ctx, requester(ctx, "CreateKey"), keygenOps, func(e engine.Set, a *scratch.Arena) error {
		var err error
		pub, err = s.store.CreateKey(ctx, e, a, req.KeyLabel, req.Bits)
		return err
	})
	if err != nil {
		return nil, s.fail("CreateKey", err)
	}
	s.log.Zap().Info("created key", zap.String("label", req.KeyLabel), zap.Int("bits", req.Bits))
	return &api.CreateKeyResponse{PublicKey: toAPIKey(pub)}, nil
}

// GetPublicKey returns the public half of a stored key pair.
func (s *Server) GetPublicKey(ctx context.Context, req *api.GetPublicKeyRequest) (*api.GetPublicKeyResponse, error) {
	if req.KeyLabel == "" {
		return nil, s.fail("GetPublicKey", errcode.Errorf(errcode.InvalidParam, "empty key label"))
	}
	pub, err := s.publicKey(ctx, req.KeyLabel, nil)
	if err != nil {
		return nil, s.passThrough("GetPublicKey", err)
	}
	return &api.GetPublicKeyResponse{PublicKey: toAPIKey(pub)}, nil
}

// KeyWrap wraps the request input for the selected public key.
func (s *Server) KeyWrap(ctx context.Context, req *api.KeyWrapRequest) (*api.KeyWrapResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("KeyWrap", err)
	}
	key, err := s.publicKey(ctx, req.KeyLabel, req.PublicKey)
	if err != nil {
		return nil, s.passThrough("KeyWrap", err)
	}
	if len(req.Input) > keywrap.KWPMaxInput {
		return nil, s.fail("KeyWrap", errcode.Errorf(errcode.KeywrapInvalidParam, "input of %d bytes", len(req.Input)))
	}

	out := make([]byte, keywrap.RequiredLen(len(req.Input), key.Size()))
	var n int
	err = s.d.Run(ctx, requester(ctx, "KeyWrap"), resmgr.All, func(e engine.Set, a *scratch.Arena) error {
		var err error
		n, err = keywrap.Wrap(e, a, &keywrap.WrapParams{
			Input:      req.Input,
			Out:        out,
			Key:        key,
			AESKeySize: engine.AESKeySize(req.AESKeySize),
			Label:      req.OAEPLabel,
			Mode:       mode,
		})
		return err
	})
	if err != nil {
		return nil, s.fail("KeyWrap", err)
	}
	return &api.KeyWrapResponse{Wrapped: out[:n]}, nil
}

// KeyUnwrap unwraps the request input with a stored private key.
func (s *Server) KeyUnwrap(ctx context.Context, req *api.KeyUnwrapRequest) (*api.KeyUnwrapResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("KeyUnwrap", err)
	}
	rec, err := s.record(ctx, req.KeyLabel)
	if err != nil {
		return nil, s.passThrough("KeyUnwrap", err)
	}

	out := make([]byte, len(req.Wrapped))
	var n int
	err = s.d.Run(ctx, requester(ctx, "KeyUnwrap"), resmgr.All, withPrivateKey(rec, func(e engine.Set, a *scratch.Arena, key *engine.RSAPrivateKey) error {
		var err error
		n, err = keywrap.Unwrap(e, a, &keywrap.UnwrapParams{
			Input:      req.Wrapped,
			Out:        out,
			Key:        key,
			AESKeySize: engine.AESKeySize(req.AESKeySize),
			Label:      req.OAEPLabel,
			Mode:       mode,
		})
		return err
	}))
	if err != nil {
		return nil, s.fail("KeyUnwrap", err)
	}
	return &api.KeyUnwrapResponse{Key: out[:n]}, nil
}

// OaepEncrypt encrypts a message with RSA-OAEP.
func (s *Server) OaepEncrypt(ctx context.Context, req *api.OaepEncryptRequest) (*api.OaepEncryptResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("OaepEncrypt", err)
	}
	key, err := s.publicKey(ctx, req.KeyLabel, req.PublicKey)
	if err != nil {
		return nil, s.passThrough("OaepEncrypt", err)
	}

	out := make([]byte, key.Size())
	err = s.d.Run(ctx, requester(ctx, "OaepEncrypt"), publicOps, func(e engine.Set, a *scratch.Arena) error {
		return padding.OAEPEncode(e, a, &padding.OAEPEncodeParams{
			Mode:  mode,
			Label: req.OAEPLabel,
			Msg:   req.Message,
			Key:   key,
			Out:   out,
		})
	})
	if err != nil {
		return nil, s.fail("OaepEncrypt", err)
	}
	return &api.OaepEncryptResponse{Ciphertext: out}, nil
}

// OaepDecrypt decrypts an RSA-OAEP ciphertext with a stored private key.
// Every decoding failure is reported as OaepDecodeError.
func (s *Server) OaepDecrypt(ctx context.Context, req *api.OaepDecryptRequest) (*api.OaepDecryptResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("OaepDecrypt", err)
	}
	rec, err := s.record(ctx, req.KeyLabel)
	if err != nil {
		return nil, s.passThrough("OaepDecrypt", err)
	}

	out := make([]byte, len(rec.Modulus))
	var n int
	err = s.d.Run(ctx, requester(ctx, "OaepDecrypt"), resmgr.All, withPrivateKey(rec, func(e engine.Set, a *scratch.Arena, key *engine.RSAPrivateKey) error {
		var err error
		n, err = padding.OAEPDecode(e, a, &padding.OAEPDecodeParams{
			Mode:       mode,
			Label:      req.OAEPLabel,
			Ciphertext: req.Ciphertext,
			Key:        key,
			Out:        out,
		})
		return err
	}))
	if err != nil {
		if errcode.CodeOf(err).GRPC() == codes.FailedPrecondition {
			err = errcode.Wrap(errcode.OaepDecodeError, err)
		}
		return nil, s.fail("OaepDecrypt", err)
	}
	return &api.OaepDecryptResponse{Message: out[:n]}, nil
}

func inputType(prehashed bool) padding.InputType {
	if prehashed {
		return padding.HashedInput
	}
	return padding.RawInput
}

// PssSign signs a message with RSA-PSS and a stored private key.
func (s *Server) PssSign(ctx context.Context, req *api.PssSignRequest) (*api.PssSignResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("PssSign", err)
	}
	rec, err := s.record(ctx, req.KeyLabel)
	if err != nil {
		return nil, s.passThrough("PssSign", err)
	}

	out := make([]byte, len(rec.Modulus))
	err = s.d.Run(ctx, requester(ctx, "PssSign"), resmgr.All, withPrivateKey(rec, func(e engine.Set, a *scratch.Arena, key *engine.RSAPrivateKey) error {
		return padding.PSSSign(e, a, &padding.PSSSignParams{
			Mode:    mode,
			Input:   inputType(req.Prehashed),
			Msg:     req.Message,
			SaltLen: req.SaltLen,
			Key:     key,
			Out:     out,
		})
	}))
	if err != nil {
		return nil, s.fail("PssSign", err)
	}
	return &api.PssSignResponse{Signature: out}, nil
}

// PssVerify checks an RSA-PSS signature.
func (s *Server) PssVerify(ctx context.Context, req *api.PssVerifyRequest) (*api.PssVerifyResponse, error) {
	mode, err := engine.ParseHashMode(req.HashMode)
	if err != nil {
		return nil, s.fail("PssVerify", err)
	}
	key, err := s.publicKey(ctx, req.KeyLabel, req.PublicKey)
	if err != nil {
		return nil, s.passThrough("PssVerify", err)
	}

	err = s.d.Run(ctx, requester(ctx, "PssVerify"), publicOps, func(e engine.Set, a *scratch.Arena) error {
		return padding.PSSVerify(e, a, &padding.PSSVerifyParams{
			Mode:    mode,
			Input:   inputType(req.Prehashed),
			Msg:     req.Message,
			SaltLen: req.SaltLen,
			Sig:     req.Signature,
			Key:     key,
		})
	})
	if err != nil {
		return nil, s.fail("PssVerify", err)
	}
	return &api.PssVerifyResponse{}, nil
}

// GetVersion returns the build version of the server.
func (s *Server) GetVersion(ctx context.Context, _ *empty.Empty) (*wrappers.StringValue, error) {
	return &wrappers.StringValue{Value: buildver.FormattedStr()}, nil
}
