// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/lowRISC/asu-keywrap/src/asu/engine/soft"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/keywrap"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/transport/auth"
)

// Per-command flags.
var (
	keyLabel   string
	keyBits    int
	pubKeyFile string
	inFile     string
	outFile    string
	sigFile    string
	hashMode   string
	oaepLabel  string
	aesKeySize int
	saltLen    int
	prehashed  bool
	hashCost   int
)

// keyFlags registers the key selection flags. Commands that only need a
// public key also accept --pubkey.
func keyFlags(cmd *cobra.Command, public bool) {
	cmd.Flags().StringVar(&keyLabel, "label", "", "Label of a key stored by the server")
	if public {
		cmd.Flags().StringVar(&pubKeyFile, "pubkey", "", "PEM public key file used instead of --label")
	} else {
		_ = cmd.MarkFlagRequired("label")
	}
}

func ioFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&inFile, "in", "i", "-", "Input file")
	cmd.Flags().StringVarP(&outFile, "out", "o", "-", "Output file")
}

// publicKeyArgs returns the label or the public key selected by the flags.
func publicKeyArgs(cmd *cobra.Command) (string, *api.PublicKey, error) {
	switch {
	case keyLabel != "" && pubKeyFile != "":
		return "", nil, fmt.Errorf("--label and --pubkey are mutually exclusive")
	case pubKeyFile != "":
		key, err := loadPublicKey(cmd, pubKeyFile)
		return "", key, err
	case keyLabel != "":
		return keyLabel, nil, nil
	}
	return "", nil, fmt.Errorf("one of --label or --pubkey is required")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate and store an RSA key pair on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: keyLabel, Bits: keyBits})
			if err != nil {
				return err
			}
			data, err := encodePublicKey(resp.PublicKey)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, data)
		})
	},
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "Export the public half of a stored key as PEM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.GetPublicKey(ctx, &api.GetPublicKeyRequest{KeyLabel: keyLabel})
			if err != nil {
				return err
			}
			data, err := encodePublicKey(resp.PublicKey)
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, data)
		})
	},
}

var wrapCmd = &cobra.Command{
	Use:   "wrap",
	Short: "Wrap key material for an RSA public key",
	Long: `wrap encrypts a fresh AES key with RSA-OAEP and the input with AES-KWP under
that key. The output is the RSA ciphertext followed by the KWP output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, key, err := publicKeyArgs(cmd)
		if err != nil {
			return err
		}
		input, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.KeyWrap(ctx, &api.KeyWrapRequest{
				KeyLabel:   label,
				PublicKey:  key,
				Input:      input,
				AESKeySize: aesKeySize,
				OAEPLabel:  []byte(oaepLabel),
				HashMode:   hashMode,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, resp.Wrapped)
		})
	},
}

var unwrapCmd = &cobra.Command{
	Use:   "unwrap",
	Short: "Unwrap key material with a stored private key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		wrapped, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.KeyUnwrap(ctx, &api.KeyUnwrapRequest{
				KeyLabel:   keyLabel,
				Wrapped:    wrapped,
				AESKeySize: aesKeySize,
				OAEPLabel:  []byte(oaepLabel),
				HashMode:   hashMode,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, resp.Key)
		})
	},
}

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "RSA-OAEP encrypt a short message",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, key, err := publicKeyArgs(cmd)
		if err != nil {
			return err
		}
		msg, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.OaepEncrypt(ctx, &api.OaepEncryptRequest{
				KeyLabel:  label,
				PublicKey: key,
				Message:   msg,
				OAEPLabel: []byte(oaepLabel),
				HashMode:  hashMode,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, resp.Ciphertext)
		})
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "RSA-OAEP decrypt with a stored private key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ct, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.OaepDecrypt(ctx, &api.OaepDecryptRequest{
				KeyLabel:   keyLabel,
				Ciphertext: ct,
				OAEPLabel:  []byte(oaepLabel),
				HashMode:   hashMode,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, resp.Message)
		})
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "RSA-PSS sign a message with a stored private key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			resp, err := c.PssSign(ctx, &api.PssSignRequest{
				KeyLabel:  keyLabel,
				Message:   msg,
				Prehashed: prehashed,
				SaltLen:   saltLen,
				HashMode:  hashMode,
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd, outFile, resp.Signature)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an RSA-PSS signature",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		label, key, err := publicKeyArgs(cmd)
		if err != nil {
			return err
		}
		msg, err := readInput(cmd, inFile)
		if err != nil {
			return err
		}
		sig, err := readInput(cmd, sigFile)
		if err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c api.KeyWrapServiceClient) error {
			_, err := c.PssVerify(ctx, &api.PssVerifyRequest{
				KeyLabel:  label,
				PublicKey: key,
				Message:   msg,
				Prehashed: prehashed,
				SaltLen:   saltLen,
				Signature: sig,
				HashMode:  hashMode,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
			return nil
		})
	},
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the key wrap known answer test on the software engines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		pool := scratch.NewPool()
		defer func() {
			if cerr := pool.Close(); err == nil {
				err = cerr
			}
		}()
		a, release, err := pool.Acquire(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			err = errcode.Update(err, release())
		}()
		if err := keywrap.SelfTest(soft.NewSet(soft.Options{}), a); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "self test passed")
		return nil
	},
}

var hashtokenCmd = &cobra.Command{
	Use:   "hashtoken",
	Short: "Hash an operator token read from stdin for the server configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		token := strings.TrimRight(line, "\r\n")
		if token == "" {
			if err != nil {
				return fmt.Errorf("failed to read token: %v", err)
			}
			return fmt.Errorf("empty token")
		}
		hash, err := auth.HashToken(token, hashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	keyFlags(keygenCmd, false)
	keygenCmd.Flags().IntVar(&keyBits, "bits", 2048, "Key size in bits: 2048, 3072 or 4096")
	keygenCmd.Flags().StringVarP(&outFile, "out", "o", "-", "Output file for the PEM public key")

	keyFlags(pubkeyCmd, false)
	pubkeyCmd.Flags().StringVarP(&outFile, "out", "o", "-", "Output file for the PEM public key")

	for _, cmd := range []*cobra.Command{wrapCmd, unwrapCmd, encryptCmd, decryptCmd, signCmd, verifyCmd} {
		cmd.Flags().StringVar(&hashMode, "hash", "sha2-256", "Hash mode, e.g. sha2-256 or sha3-512")
	}
	for _, cmd := range []*cobra.Command{wrapCmd, unwrapCmd} {
		cmd.Flags().IntVar(&aesKeySize, "aes", 32, "AES key size in bytes: 16 or 32")
	}
	for _, cmd := range []*cobra.Command{wrapCmd, unwrapCmd, encryptCmd, decryptCmd} {
		cmd.Flags().StringVar(&oaepLabel, "oaep_label", "", "OAEP label")
	}
	for _, cmd := range []*cobra.Command{signCmd, verifyCmd} {
		cmd.Flags().IntVar(&saltLen, "salt", 32, "PSS salt length in bytes")
		cmd.Flags().BoolVar(&prehashed, "prehashed", false, "The input is already a digest")
	}

	keyFlags(wrapCmd, true)
	ioFlags(wrapCmd)
	keyFlags(unwrapCmd, false)
	ioFlags(unwrapCmd)
	keyFlags(encryptCmd, true)
	ioFlags(encryptCmd)
	keyFlags(decryptCmd, false)
	ioFlags(decryptCmd)
	keyFlags(signCmd, false)
	ioFlags(signCmd)
	keyFlags(verifyCmd, true)
	verifyCmd.Flags().StringVarP(&inFile, "in", "i", "-", "Signed message file")
	verifyCmd.Flags().StringVar(&sigFile, "sig", "", "Signature file")
	_ = verifyCmd.MarkFlagRequired("sig")

	hashtokenCmd.Flags().IntVar(&hashCost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	rootCmd.AddCommand(keygenCmd, pubkeyCmd, wrapCmd, unwrapCmd, encryptCmd, decryptCmd,
		signCmd, verifyCmd, selftestCmd, hashtokenCmd)
}
