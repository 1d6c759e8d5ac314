// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Binary asutool is the command line client of the ASU key wrap service. It
// also runs the key wrap self test locally on the software engines.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/protobuf/ptypes/empty"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/transport/auth"
	"github.com/lowRISC/asu-keywrap/src/transport/grpconn"
	"github.com/lowRISC/asu-keywrap/src/utils"
	"github.com/lowRISC/asu-keywrap/src/version/buildver"
)

// Connection flags shared by every remote command.
var (
	address     string
	enableTLS   bool
	clientKey   string
	clientCert  string
	caRootCerts string
	operatorID  string
	tokenEnv    string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "asutool",
	Short: "Client for the ASU key wrap service",
	Long: `asutool talks to an ASU key wrap server. It creates stored RSA keys, wraps
and unwraps key material with the hybrid RSA-OAEP and AES-KWP scheme, and
exposes the OAEP and PSS primitives for testing.

Inputs and outputs are files; "-" selects stdin or stdout.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&address, "address", "localhost:5001", "Address of the key wrap server")
	pf.BoolVar(&enableTLS, "enable_tls", false, "Connect over mTLS")
	pf.StringVar(&clientKey, "client_key", "", "File path to the PEM encoding of the client's private key")
	pf.StringVar(&clientCert, "client_cert", "", "File path to the PEM encoding of the client's certificate chain")
	pf.StringVar(&caRootCerts, "ca_root_certs", "", "File path to the PEM encoding of the CA root certificates")
	pf.StringVar(&operatorID, "operator", "", "Operator ID sent with every call")
	pf.StringVar(&tokenEnv, "token_env", "ASU_OPERATOR_TOKEN", "Environment variable holding the operator token")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "Deadline of each remote call")
}

// dial connects to the server. Tests replace it.
var dial = func(ctx context.Context) (*grpc.ClientConn, error) {
	var (
		creds credentials.TransportCredentials
		opts  []grpc.DialOption
		err   error
	)
	if enableTLS {
		creds, err = grpconn.LoadClientCredentials(caRootCerts, clientCert, clientKey)
		if err != nil {
			return nil, err
		}
	}
	if operatorID != "" {
		token := os.Getenv(tokenEnv)
		if token == "" {
			return nil, fmt.Errorf("environment variable %q is not set or empty", tokenEnv)
		}
		opts = append(opts, grpc.WithPerRPCCredentials(auth.TokenCredentials{
			OperatorID: operatorID,
			Token:      token,
			Secure:     enableTLS,
		}))
	}
	return grpconn.Dial(ctx, address, creds, opts...)
}

// withClient runs fn with a connected client under the call deadline.
func withClient(cmd *cobra.Command, fn func(context.Context, api.KeyWrapServiceClient) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, api.NewKeyWrapServiceClient(conn))
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return utils.ReadFile(name)
}

func writeOutput(cmd *cobra.Command, name string, data []byte) error {
	if name == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return utils.WriteFile(name, data, 0600)
}

// encodePublicKey returns the PKIX PEM encoding of key.
func encodePublicKey(key *api.PublicKey) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("server returned no public key")
	}
	pub := (&engine.RSAPublicKey{Modulus: key.Modulus, Exponent: key.Exponent}).RSA()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// loadPublicKey reads a PKIX PEM public key file.
func loadPublicKey(cmd *cobra.Command, name string) (*api.PublicKey, error) {
	data, err := readInput(cmd, name)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%s: no PUBLIC KEY block", name)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s: %T is not an RSA key", name, pub)
	}
	k := engine.PublicKeyFromRSA(rsaPub)
	return &api.PublicKey{Modulus: k.Modulus, Exponent: k.Exponent}, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version and, with --remote, the server version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), buildver.FormattedStr())
		if !versionRemote {
			return nil
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			v, err := c.GetVersion(ctx, &empty.Empty{})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "server: %s\n", v.GetValue())
			return nil
		})
	},
}

var versionRemote bool

func init() {
	versionCmd.Flags().BoolVar(&versionRemote, "remote", false, "Also query the server version")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
