// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package keystore stores the RSA key pairs used by the key wrap service.
//
// Public key parts are stored in clear. The private exponent is sealed with
// AES-KWP under the key encryption key (KEK) held in AES engine slot KEKSlot,
// so the KEK is only ever used through the AES engine. Records are CBOR
// encoded and stored under `/asu/keys/<label>` in a `connector.Connector`.
package keystore

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/keywrap"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
)

// KEKSlot is the AES key slot holding the key encryption key.
const KEKSlot = engine.UserKey0

const keyPrefix = "/asu/keys/"

var labelRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ErrExists is returned by CreateKey when the label is already in use.
var ErrExists = errors.New("key already exists")

// Record is the stored form of a key pair.
type Record struct {
	Label          string `cbor:"1,keyasint"`
	Modulus        []byte `cbor:"2,keyasint"`
	PublicExponent []byte `cbor:"3,keyasint"`
	// SealedExponent is the AES-KWP wrapped private exponent, left-padded to
	// the modulus length before sealing.
	SealedExponent []byte `cbor:"4,keyasint"`
	CreatedAt      int64  `cbor:"5,keyasint"`
}

// Public returns the public key held in r.
func (r *Record) Public() *engine.RSAPublicKey {
	return &engine.RSAPublicKey{
		Modulus:  r.Modulus,
		Exponent: r.PublicExponent,
	}
}

// Store reads and writes key records.
type Store struct {
	db  connector.Connector
	enc cbor.EncMode
	dec cbor.DecMode
	now func() time.Time
}

// New returns a store backed by db.
func New(db connector.Connector) (*Store, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %v", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %v", err)
	}
	return &Store{db: db, enc: enc, dec: dec, now: time.Now}, nil
}

// ValidateLabel checks that label can be used as a key name.
func ValidateLabel(label string) error {
	if !labelRE.MatchString(label) {
		return errcode.Errorf(errcode.InvalidParam, "invalid key label %q", label)
	}
	return nil
}

func recordKey(label string) string {
	return keyPrefix + label
}

// Put stores rec, replacing any record with the same label.
func (s *Store) Put(ctx context.Context, rec *Record) error {
	if err := ValidateLabel(rec.Label); err != nil {
		return err
	}
	b, err := s.enc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %q: %v", rec.Label, err)
	}
	return s.db.Insert(ctx, recordKey(rec.Label), b)
}

// Get returns the record stored under label. Missing records wrap
// connector.ErrNotFound.
func (s *Store) Get(ctx context.Context, label string) (*Record, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	b, err := s.db.Get(ctx, recordKey(label))
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := s.dec.Unmarshal(b, rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %q: %v", label, err)
	}
	if rec.Label != label {
		return nil, fmt.Errorf("record %q holds label %q", label, rec.Label)
	}
	return rec, nil
}

// PublicKey returns the public key stored under label.
func (s *Store) PublicKey(ctx context.Context, label string) (*engine.RSAPublicKey, error) {
	rec, err := s.Get(ctx, label)
	if err != nil {
		return nil, err
	}
	return rec.Public(), nil
}

// CreateKey generates a key pair of the given size in bits, using the TRNG
// engine as entropy source, and stores it under label with the private
// exponent sealed under the KEK. The caller must hold the AES, DMA and TRNG
// engines and the arena.
func (s *Store) CreateKey(ctx context.Context, e engine.Set, a *scratch.Arena, label string, bits int) (*engine.RSAPublicKey, error) {
	if err := ValidateLabel(label); err != nil {
		return nil, err
	}
	if !engine.ValidKeySize(bits / 8) || bits%8 != 0 {
		return nil, errcode.Errorf(errcode.InvalidKeySize, "RSA key size %d bits", bits)
	}
	if _, err := s.db.Get(ctx, recordKey(label)); err == nil {
		return nil, fmt.Errorf("key %q: %w", label, ErrExists)
	} else if !errors.Is(err, connector.ErrNotFound) {
		return nil, err
	}

	key, err := rsa.GenerateKey(&trngReader{e.TRNG}, bits)
	if err != nil {
		return nil, errcode.Wrap(errcode.RandGenError, err)
	}
	priv := engine.PrivateKeyFromRSA(key)
	defer clear(priv.PrivateExponent)
	key.D.SetInt64(0)

	sealed, err := Seal(e, a, priv.PrivateExponent)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		Label:          label,
		Modulus:        priv.Modulus,
		PublicExponent: priv.PublicExponent,
		SealedExponent: sealed,
		CreatedAt:      s.now().Unix(),
	}
	if err := s.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec.Public(), nil
}

// PrivateKey returns the key pair stored under label with its private
// exponent unsealed. The caller should clear PrivateExponent after use.
func (s *Store) PrivateKey(ctx context.Context, e engine.Set, a *scratch.Arena, label string) (*engine.RSAPrivateKey, error) {
	rec, err := s.Get(ctx, label)
	if err != nil {
		return nil, err
	}
	return rec.PrivateKey(e, a)
}

// PrivateKey unseals the private exponent held in r. The caller must hold
// the AES and DMA engines and the arena.
func (r *Record) PrivateKey(e engine.Set, a *scratch.Arena) (*engine.RSAPrivateKey, error) {
	d, err := Unseal(e, a, r.SealedExponent, len(r.Modulus))
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", r.Label, err)
	}
	return &engine.RSAPrivateKey{
		Modulus:         r.Modulus,
		PublicExponent:  r.PublicExponent,
		PrivateExponent: d,
	}, nil
}

// LoadKEK writes kek into KEKSlot.
func LoadKEK(e engine.Set, kek []byte) error {
	if !engine.AESKeySize(len(kek)).Valid() {
		return errcode.Errorf(errcode.InvalidKeySize, "KEK of %d bytes", len(kek))
	}
	if err := e.AES.WriteKey(KEKSlot, kek); err != nil {
		return errcode.Step(errcode.AesWriteKeyFailed, err)
	}
	return nil
}

// Seal wraps secret under the KEK.
func Seal(e engine.Set, a *scratch.Arena, secret []byte) ([]byte, error) {
	out := make([]byte, keywrap.WrappedLen(len(secret)))
	n, err := keywrap.KWPWrap(e, a, KEKSlot, secret, out)
	if err != nil {
		return nil, errcode.Step(errcode.KeywrapAesWrappedKeyError, err)
	}
	return out[:n], nil
}

// Unseal unwraps sealed under the KEK and checks that the secret is size
// bytes long.
func Unseal(e engine.Set, a *scratch.Arena, sealed []byte, size int) ([]byte, error) {
	if len(sealed) < keywrap.SemiBlock {
		return nil, errcode.Errorf(errcode.KeywrapInvalidParam, "sealed secret of %d bytes", len(sealed))
	}
	out := make([]byte, len(sealed)-keywrap.SemiBlock)
	n, err := keywrap.KWPUnwrap(e, a, KEKSlot, sealed, out)
	if err != nil {
		return nil, errcode.Step(errcode.KeywrapAesUnwrappedKeyError, err)
	}
	if n != size {
		clear(out)
		return nil, errcode.Errorf(errcode.KeywrapAesUnwrappedKeyError, "unsealed %d bytes, want %d", n, size)
	}
	return out[:n], nil
}

// trngReader adapts a TRNG engine to io.Reader.
type trngReader struct {
	trng engine.TRNG
}

func (r *trngReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.trng.GetRandomNumbers(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
