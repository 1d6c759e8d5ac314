// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/lowRISC/asu-keywrap/src/asu/engine/soft"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/asusvc/services"
	"github.com/lowRISC/asu-keywrap/src/keystore"
	"github.com/lowRISC/asu-keywrap/src/keystore/db_fake"
	"github.com/lowRISC/asu-keywrap/src/version/buildver"
)

func executeCommand(root *cobra.Command, stdin []byte, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(bytes.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag variable to its default value.
func resetFlags() {
	address = "localhost:5001"
	enableTLS = false
	clientKey = ""
	clientCert = ""
	caRootCerts = ""
	operatorID = ""
	tokenEnv = "ASU_OPERATOR_TOKEN"
	timeout = 30 * time.Second
	versionRemote = false

	keyLabel = ""
	keyBits = 2048
	pubKeyFile = ""
	inFile = "-"
	outFile = "-"
	sigFile = ""
	hashMode = "sha2-256"
	oaepLabel = ""
	aesKeySize = 32
	saltLen = 32
	prehashed = false
	hashCost = bcrypt.DefaultCost
}

// startServer serves a key wrap server on an in-memory listener and points
// `dial` at it.
func startServer(t *testing.T) {
	t.Helper()
	e := soft.NewSet(soft.Options{})
	require.NoError(t, keystore.LoadKEK(e, bytes.Repeat([]byte{0x5A}, 16)))
	store, err := keystore.New(db_fake.New())
	require.NoError(t, err)
	srv, err := services.NewKeyWrapServer(services.Options{Engines: e, Store: store})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	api.RegisterKeyWrapServiceServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	orig := dial
	dial = func(ctx context.Context) (*grpc.ClientConn, error) {
		return grpc.DialContext(ctx, "bufnet",
			grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
				return lis.Dial()
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	t.Cleanup(func() { dial = orig })
}

func run(t *testing.T, stdin []byte, args ...string) string {
	t.Helper()
	resetFlags()
	out, err := executeCommand(rootCmd, stdin, args...)
	require.NoError(t, err, "asutool %s: %s", strings.Join(args, " "), out)
	return out
}

func TestVersion(t *testing.T) {
	startServer(t)

	out := run(t, nil, "version")
	require.Equal(t, buildver.FormattedStr()+"\n", out)

	out = run(t, nil, "version", "--remote")
	require.Contains(t, out, "server: ")
}

func TestSelfTest(t *testing.T) {
	out := run(t, nil, "selftest")
	require.Equal(t, "self test passed\n", out)
}

func TestHashToken(t *testing.T) {
	out := run(t, []byte("s3cret\n"), "hashtoken", "--cost", "4")
	hash := strings.TrimSpace(out)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	resetFlags()
	_, err := executeCommand(rootCmd, nil, "hashtoken")
	require.Error(t, err)
}

func TestKeyLifecycle(t *testing.T) {
	startServer(t)
	dir := t.TempDir()
	path := func(name string) string { return filepath.Join(dir, name) }

	run(t, nil, "keygen", "--label", "tool-key", "--out", path("pub.pem"))
	run(t, nil, "pubkey", "--label", "tool-key", "--out", path("pub2.pem"))
	pub, err := os.ReadFile(path("pub.pem"))
	require.NoError(t, err)
	pub2, err := os.ReadFile(path("pub2.pem"))
	require.NoError(t, err)
	require.Equal(t, pub, pub2)
	require.Contains(t, string(pub), "BEGIN PUBLIC KEY")

	secret := bytes.Repeat([]byte{0xA7}, 40)
	require.NoError(t, os.WriteFile(path("secret.bin"), secret, 0600))

	t.Run("wrap", func(t *testing.T) {
		for _, keyArgs := range [][]string{
			{"--pubkey", path("pub.pem")},
			{"--label", "tool-key"},
		} {
			args := append([]string{"wrap", "--in", path("secret.bin"), "--out", path("wrapped.bin"),
				"--aes", "16", "--hash", "sha3-256", "--oaep_label", "ctx"}, keyArgs...)
			run(t, nil, args...)
			out := run(t, nil, "unwrap", "--label", "tool-key", "--in", path("wrapped.bin"),
				"--aes", "16", "--hash", "sha3-256", "--oaep_label", "ctx")
			require.Equal(t, secret, []byte(out))
		}
	})

	t.Run("oaep", func(t *testing.T) {
		msg := []byte("short message")
		run(t, msg, "encrypt", "--pubkey", path("pub.pem"), "--out", path("ct.bin"))
		out := run(t, nil, "decrypt", "--label", "tool-key", "--in", path("ct.bin"))
		require.Equal(t, msg, []byte(out))
	})

	t.Run("pss", func(t *testing.T) {
		msg := []byte("signed message")
		require.NoError(t, os.WriteFile(path("msg.bin"), msg, 0600))
		run(t, nil, "sign", "--label", "tool-key", "--in", path("msg.bin"), "--out", path("sig.bin"),
			"--hash", "sha2-384", "--salt", "20")
		out := run(t, nil, "verify", "--pubkey", path("pub.pem"), "--in", path("msg.bin"),
			"--sig", path("sig.bin"), "--hash", "sha2-384", "--salt", "20")
		require.Equal(t, "signature OK\n", out)

		sig, err := os.ReadFile(path("sig.bin"))
		require.NoError(t, err)
		sig[len(sig)/2] ^= 0x01
		require.NoError(t, os.WriteFile(path("bad.bin"), sig, 0600))
		resetFlags()
		_, err = executeCommand(rootCmd, nil, "verify", "--label", "tool-key", "--in", path("msg.bin"),
			"--sig", path("bad.bin"), "--hash", "sha2-384", "--salt", "20")
		require.Error(t, err)
		require.Equal(t, codes.FailedPrecondition, status.Code(err), "%v", err)
	})
}

func TestErrors(t *testing.T) {
	startServer(t)
	dir := t.TempDir()

	tests := []struct {
		name     string
		args     []string
		wantCode codes.Code
	}{
		{
			name: "no key",
			args: []string{"wrap"},
		},
		{
			name: "label and pubkey",
			args: []string{"encrypt", "--label", "a", "--pubkey", filepath.Join(dir, "missing.pem")},
		},
		{
			name: "missing pubkey file",
			args: []string{"verify", "--pubkey", filepath.Join(dir, "missing.pem"), "--sig", filepath.Join(dir, "sig")},
		},
		{
			name:     "unknown label",
			args:     []string{"pubkey", "--label", "nope"},
			wantCode: codes.NotFound,
		},
		{
			name:     "bad key size",
			args:     []string{"keygen", "--label", "small", "--bits", "1024"},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "bad hash mode",
			args:     []string{"unwrap", "--label", "nope", "--hash", "md5"},
			wantCode: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags()
			_, err := executeCommand(rootCmd, nil, tt.args...)
			require.Error(t, err)
			if tt.wantCode != codes.OK {
				require.Equal(t, tt.wantCode, status.Code(err), "%v", err)
			}
		})
	}
}
