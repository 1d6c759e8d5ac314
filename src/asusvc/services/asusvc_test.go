// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/engine/soft"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/keywrap"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/keystore"
	"github.com/lowRISC/asu-keywrap/src/keystore/db_fake"
)

const bufSize = 1 << 20

var kek = bytes.Repeat([]byte{0x3C}, 32)

type testEnv struct {
	client api.KeyWrapServiceClient
	server *Server
}

func newEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()
	e := soft.NewSet(soft.Options{SHAChunkSize: soft.MinChunkSize})
	opts := Options{Engines: e}
	if withStore {
		require.NoError(t, keystore.LoadKEK(e, kek))
		store, err := keystore.New(db_fake.New())
		require.NoError(t, err)
		opts.Store = store
	}
	srv, err := NewKeyWrapServer(opts)
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer()
	api.RegisterKeyWrapServiceServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{client: api.NewKeyWrapServiceClient(conn), server: srv}
}

var (
	localKeyOnce sync.Once
	localKey     *rsa.PrivateKey
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	localKeyOnce.Do(func() {
		var err error
		localKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return localKey
}

func requireCode(t *testing.T, err error, want codes.Code, wantErr errcode.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, status.Code(err), "status: %v", err)
	if wantErr != errcode.OK {
		require.Equal(t, wantErr, api.ErrCode(err), "status: %v", err)
	}
}

func TestKeyWrapRoundTrip(t *testing.T) {
	env := newEnv(t, true)
	ctx := context.Background()

	created, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "svc-key", Bits: 2048})
	require.NoError(t, err)
	require.Len(t, created.PublicKey.Modulus, engine.KeySize2048)

	got, err := env.client.GetPublicKey(ctx, &api.GetPublicKeyRequest{KeyLabel: "svc-key"})
	require.NoError(t, err)
	require.Equal(t, created.PublicKey, got.PublicKey)

	input := bytes.Repeat([]byte{0xC3}, 32)
	for _, mode := range []string{"sha2-256", "sha3-384", "SHA2_512"} {
		t.Run(mode, func(t *testing.T) {
			w, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{
				KeyLabel:   "svc-key",
				Input:      input,
				AESKeySize: 32,
				OAEPLabel:  []byte("label"),
				HashMode:   mode,
			})
			require.NoError(t, err)
			require.Len(t, w.Wrapped, keywrap.RequiredLen(len(input), engine.KeySize2048))

			u, err := env.client.KeyUnwrap(ctx, &api.KeyUnwrapRequest{
				KeyLabel:   "svc-key",
				Wrapped:    w.Wrapped,
				AESKeySize: 32,
				OAEPLabel:  []byte("label"),
				HashMode:   mode,
			})
			require.NoError(t, err)
			require.Equal(t, input, u.Key)
		})
	}
	require.Zero(t, env.server.Stats().InFlight)
}

func TestKeyWrapSuppliedKey(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	key := testRSAKey(t)
	pub := engine.PublicKeyFromRSA(&key.PublicKey)

	input := []byte("0123456789abcdefghij")
	w, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{
		PublicKey:  &api.PublicKey{Modulus: pub.Modulus, Exponent: pub.Exponent},
		Input:      input,
		AESKeySize: 16,
		HashMode:   "sha2-256",
	})
	require.NoError(t, err)

	out := make([]byte, len(input))
	n, err := keywrap.Unwrap(soft.NewSet(soft.Options{}), new(scratch.Arena), &keywrap.UnwrapParams{
		Input:      w.Wrapped,
		Out:        out,
		Key:        engine.PrivateKeyFromRSA(key),
		AESKeySize: engine.AES128,
		Mode:       engine.SHA2_256,
	})
	require.NoError(t, err)
	require.Equal(t, input, out[:n])

	// The caller supplied key is enough to encrypt and verify, not to
	// decrypt or sign.
	_, err = env.client.OaepEncrypt(ctx, &api.OaepEncryptRequest{
		PublicKey: &api.PublicKey{Modulus: pub.Modulus, Exponent: pub.Exponent},
		Message:   []byte("hi"),
		HashMode:  "sha2-256",
	})
	require.NoError(t, err)
	_, err = env.client.OaepDecrypt(ctx, &api.OaepDecryptRequest{KeyLabel: "k", HashMode: "sha2-256"})
	requireCode(t, err, codes.Unimplemented, errcode.OK)
	_, err = env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "k", Bits: 2048})
	requireCode(t, err, codes.Unimplemented, errcode.OK)
}

func TestOaep(t *testing.T) {
	env := newEnv(t, true)
	ctx := context.Background()

	created, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "oaep", Bits: 2048})
	require.NoError(t, err)
	pub := (&engine.RSAPublicKey{Modulus: created.PublicKey.Modulus, Exponent: created.PublicKey.Exponent}).RSA()

	msg := []byte("attack at dawn")
	enc, err := env.client.OaepEncrypt(ctx, &api.OaepEncryptRequest{
		KeyLabel:  "oaep",
		Message:   msg,
		OAEPLabel: []byte("L"),
		HashMode:  "sha2-256",
	})
	require.NoError(t, err)
	dec, err := env.client.OaepDecrypt(ctx, &api.OaepDecryptRequest{
		KeyLabel:   "oaep",
		Ciphertext: enc.Ciphertext,
		OAEPLabel:  []byte("L"),
		HashMode:   "sha2-256",
	})
	require.NoError(t, err)
	require.Equal(t, msg, dec.Message)

	// Interoperates with crypto/rsa.
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, msg, []byte("L"))
	require.NoError(t, err)
	dec, err = env.client.OaepDecrypt(ctx, &api.OaepDecryptRequest{
		KeyLabel:   "oaep",
		Ciphertext: ct,
		OAEPLabel:  []byte("L"),
		HashMode:   "sha2-256",
	})
	require.NoError(t, err)
	require.Equal(t, msg, dec.Message)

	// Every padding failure looks the same to the caller.
	_, err = env.client.OaepDecrypt(ctx, &api.OaepDecryptRequest{
		KeyLabel:   "oaep",
		Ciphertext: ct,
		OAEPLabel:  []byte("wrong"),
		HashMode:   "sha2-256",
	})
	requireCode(t, err, codes.FailedPrecondition, errcode.OaepDecodeError)
	require.False(t, strings.Contains(status.Convert(err).Message(), "OaepHashCmpFail"))

	_, err = env.client.OaepDecrypt(ctx, &api.OaepDecryptRequest{
		KeyLabel:   "oaep",
		Ciphertext: ct[1:],
		HashMode:   "sha2-256",
	})
	requireCode(t, err, codes.InvalidArgument, errcode.OaepInvalidLen)
}

func TestPss(t *testing.T) {
	env := newEnv(t, true)
	ctx := context.Background()

	created, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "pss", Bits: 2048})
	require.NoError(t, err)
	pub := (&engine.RSAPublicKey{Modulus: created.PublicKey.Modulus, Exponent: created.PublicKey.Exponent}).RSA()

	// Longer than one digest chunk, so the dispatcher re-invokes the
	// operation until the digest engine is done.
	msg := bytes.Repeat([]byte("provisioning "), 250)
	before := env.server.Stats().Reinvoked
	sig, err := env.client.PssSign(ctx, &api.PssSignRequest{
		KeyLabel: "pss",
		Message:  msg,
		SaltLen:  32,
		HashMode: "sha2-256",
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, env.server.Stats().Reinvoked-before, uint64(2))

	digest := sha256.Sum256(msg)
	require.NoError(t, rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig.Signature, &rsa.PSSOptions{SaltLength: 32}))

	_, err = env.client.PssVerify(ctx, &api.PssVerifyRequest{
		KeyLabel:  "pss",
		Message:   msg,
		SaltLen:   32,
		Signature: sig.Signature,
		HashMode:  "sha2-256",
	})
	require.NoError(t, err)

	_, err = env.client.PssVerify(ctx, &api.PssVerifyRequest{
		KeyLabel:  "pss",
		Message:   digest[:],
		Prehashed: true,
		SaltLen:   32,
		Signature: sig.Signature,
		HashMode:  "sha2-256",
	})
	require.NoError(t, err)

	_, err = env.client.PssVerify(ctx, &api.PssVerifyRequest{
		KeyLabel:  "pss",
		Message:   []byte("something else"),
		SaltLen:   32,
		Signature: sig.Signature,
		HashMode:  "sha2-256",
	})
	requireCode(t, err, codes.FailedPrecondition, errcode.PssHashCmpFail)

	// Signatures from crypto/rsa verify too.
	priv := testRSAKey(t)
	localSig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: 20})
	require.NoError(t, err)
	lp := engine.PublicKeyFromRSA(&priv.PublicKey)
	_, err = env.client.PssVerify(ctx, &api.PssVerifyRequest{
		PublicKey: &api.PublicKey{Modulus: lp.Modulus, Exponent: lp.Exponent},
		Message:   digest[:],
		Prehashed: true,
		SaltLen:   20,
		Signature: localSig,
		HashMode:  "sha2-256",
	})
	require.NoError(t, err)
}

func TestErrors(t *testing.T) {
	env := newEnv(t, true)
	ctx := context.Background()

	_, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "dup", Bits: 2048})
	require.NoError(t, err)

	tests := []struct {
		name    string
		call    func() error
		code    codes.Code
		errCode errcode.Code
	}{
		{
			name: "duplicate key",
			call: func() error {
				_, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "dup", Bits: 2048})
				return err
			},
			code: codes.AlreadyExists,
		},
		{
			name: "bad key size",
			call: func() error {
				_, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "small", Bits: 1024})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.InvalidKeySize,
		},
		{
			name: "missing key",
			call: func() error {
				_, err := env.client.GetPublicKey(ctx, &api.GetPublicKeyRequest{KeyLabel: "nope"})
				return err
			},
			code: codes.NotFound,
		},
		{
			name: "empty label",
			call: func() error {
				_, err := env.client.GetPublicKey(ctx, &api.GetPublicKeyRequest{})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.InvalidParam,
		},
		{
			name: "bad hash mode",
			call: func() error {
				_, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{KeyLabel: "dup", Input: []byte("k"), AESKeySize: 16, HashMode: "md5"})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.InvalidHashMode,
		},
		{
			name: "no key",
			call: func() error {
				_, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{Input: []byte("k"), AESKeySize: 16, HashMode: "sha2-256"})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.InvalidParam,
		},
		{
			name: "bad AES key size",
			call: func() error {
				_, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{KeyLabel: "dup", Input: []byte("k"), AESKeySize: 24, HashMode: "sha2-256"})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.InvalidKeySize,
		},
		{
			name: "oversized input",
			call: func() error {
				_, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{KeyLabel: "dup", Input: make([]byte, 513), AESKeySize: 16, HashMode: "sha2-256"})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.KeywrapInvalidParam,
		},
		{
			name: "truncated wrapped key",
			call: func() error {
				_, err := env.client.KeyUnwrap(ctx, &api.KeyUnwrapRequest{KeyLabel: "dup", Wrapped: make([]byte, 260), AESKeySize: 16, HashMode: "sha2-256"})
				return err
			},
			code:    codes.InvalidArgument,
			errCode: errcode.KeywrapInvalidParam,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, tt.call(), tt.code, tt.errCode)
		})
	}
}

func TestUnwrapWrongAESSize(t *testing.T) {
	env := newEnv(t, true)
	ctx := context.Background()
	_, err := env.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: "k", Bits: 2048})
	require.NoError(t, err)

	w, err := env.client.KeyWrap(ctx, &api.KeyWrapRequest{KeyLabel: "k", Input: []byte("secret key bytes"), AESKeySize: 16, HashMode: "sha2-256"})
	require.NoError(t, err)
	_, err = env.client.KeyUnwrap(ctx, &api.KeyUnwrapRequest{KeyLabel: "k", Wrapped: w.Wrapped, AESKeySize: 32, HashMode: "sha2-256"})
	requireCode(t, err, codes.FailedPrecondition, errcode.OaepDecodeError)
}

func TestGetVersion(t *testing.T) {
	env := newEnv(t, false)
	v, err := env.client.GetVersion(context.Background(), &empty.Empty{})
	require.NoError(t, err)
	require.Contains(t, v.Value, "Version:")
}

func TestSelfTest(t *testing.T) {
	env := newEnv(t, false)
	require.NoError(t, env.server.SelfTest(context.Background()))
	require.Equal(t, uint64(1), env.server.Stats().Completed)
}
