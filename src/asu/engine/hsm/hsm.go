// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package hsm implements the engine interfaces on a PKCS#11 token.
//
// RSA runs as raw exponentiation (CKM_RSA_X_509) on session key objects
// created per call, AES key slots are session secret keys driven with
// CKM_AES_ECB, digests and random numbers come from the token. Nothing is
// stored on the token.
package hsm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/miekg/pkcs11"
	"go.uber.org/multierr"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
)

// sessionQueue implements a thread-safe HSM session queue. See `insert` and
// `getHandle` functions for more details.
type sessionQueue struct {
	// numSessions is the number of sessions managed by the queue.
	numSessions int

	// s is an HSM session channel.
	s chan pkcs11.SessionHandle
}

// newSessionQueue creates a session queue with a channel of depth `num`.
func newSessionQueue(num int) *sessionQueue {
	return &sessionQueue{
		numSessions: num,
		s:           make(chan pkcs11.SessionHandle, num),
	}
}

// insert adds a new session `s` to the session queue.
func (q *sessionQueue) insert(s pkcs11.SessionHandle) error {
	if len(q.s) >= q.numSessions {
		return errors.New("reached maximum session queue capacity")
	}
	q.s <- s
	return nil
}

// getHandle returns a session from the queue and a release function to
// get the session back into the queue. Recommended use:
//
//	session, release := q.getHandle()
//	defer release()
//
// Note: failing to call the release function can result into deadlocks
// if the queue remains empty after calling the `insert` function.
func (q *sessionQueue) getHandle() (pkcs11.SessionHandle, func()) {
	s := <-q.s
	release := func() {
		q.insert(s)
	}
	return s, release
}

// drain removes every session from the queue. It blocks until all handles
// have been released.
func (q *sessionQueue) drain() []pkcs11.SessionHandle {
	out := make([]pkcs11.SessionHandle, 0, q.numSessions)
	for i := 0; i < q.numSessions; i++ {
		out = append(out, <-q.s)
	}
	return out
}

// Config contains parameters used to configure a new HSM instance with the
// `New` function.
type Config struct {
	// SOPath is the path to the PKCS#11 library used to connect to the HSM.
	SOPath string `yaml:"so_path"`

	// SlotID is the HSM slot ID. It is ignored when TokenLabel is set.
	SlotID int `yaml:"slot_id"`

	// TokenLabel selects the slot holding the token with this label.
	TokenLabel string `yaml:"token_label"`

	// PINFile is a file holding the Crypto User PIN.
	PINFile string `yaml:"pin_file"`

	// PINEnv names an environment variable holding the Crypto User PIN. It
	// is consulted when PINFile is empty.
	PINEnv string `yaml:"pin_env" default:"ASU_HSM_PIN"`

	// NumSessions configures the number of sessions to open in the slot.
	NumSessions int `yaml:"num_sessions" default:"4"`
}

// PIN returns the Crypto User PIN.
func (c *Config) PIN() (string, error) {
	if c.PINFile != "" {
		b, err := os.ReadFile(c.PINFile)
		if err != nil {
			return "", fmt.Errorf("failed to read HSM PIN file: %v", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	pin := os.Getenv(c.PINEnv)
	if pin == "" {
		return "", fmt.Errorf("environment variable %q is not set or empty", c.PINEnv)
	}
	return pin, nil
}

// HSM holds the open sessions and the AES key slot bank of one token.
type HSM struct {
	ctx      *pkcs11.Ctx
	slot     uint
	sessions *sessionQueue

	// keys maps engine key slots to session secret key objects. Access is
	// guarded by the AES engine.
	keys [engine.NumKeySlots]pkcs11.ObjectHandle
}

func findSlot(ctx *pkcs11.Ctx, cfg *Config) (uint, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to list slots: %v", err)
	}
	if cfg.TokenLabel == "" {
		if cfg.SlotID < 0 || cfg.SlotID >= len(slots) {
			return 0, fmt.Errorf("fail to find slot number %d, %d slots available", cfg.SlotID, len(slots))
		}
		return slots[cfg.SlotID], nil
	}
	for _, s := range slots {
		info, err := ctx.GetTokenInfo(s)
		if err != nil {
			continue
		}
		if strings.TrimSpace(info.Label) == cfg.TokenLabel {
			return s, nil
		}
	}
	return 0, fmt.Errorf("no token labelled %q", cfg.TokenLabel)
}

// New loads the PKCS#11 library, opens `cfg.NumSessions` sessions on the
// selected slot and logs in as crypto user.
func New(cfg Config) (h *HSM, err error) {
	if cfg.NumSessions <= 0 {
		cfg.NumSessions = 1
	}
	pin, err := cfg.PIN()
	if err != nil {
		return nil, err
	}

	ctx := pkcs11.New(cfg.SOPath)
	if ctx == nil {
		return nil, fmt.Errorf("fail to load PKCS#11 library %q", cfg.SOPath)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("fail to initialize PKCS#11 library: %v", err)
	}

	h = &HSM{ctx: ctx, sessions: newSessionQueue(cfg.NumSessions)}
	opened := []pkcs11.SessionHandle{}
	defer func() {
		if err != nil {
			for _, s := range opened {
				ctx.CloseSession(s)
			}
			ctx.Finalize()
			ctx.Destroy()
			h = nil
		}
	}()

	if h.slot, err = findSlot(ctx, &cfg); err != nil {
		return nil, err
	}

	for i := 0; i < cfg.NumSessions; i++ {
		s, err := ctx.OpenSession(h.slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
		if err != nil {
			return nil, fmt.Errorf("fail to open session to HSM: %v", err)
		}
		opened = append(opened, s)

		// The login state is shared by all sessions of the application.
		if err := ctx.Login(s, pkcs11.CKU_USER, pin); err != nil && !isAlreadyLoggedIn(err) {
			return nil, fmt.Errorf("fail to login into the HSM: %v", err)
		}

		if err := h.sessions.insert(s); err != nil {
			return nil, fmt.Errorf("failed to enqueue session: %v", err)
		}
	}
	return h, nil
}

func isAlreadyLoggedIn(err error) bool {
	var perr pkcs11.Error
	return errors.As(err, &perr) && perr == pkcs11.CKR_USER_ALREADY_LOGGED_IN
}

// CmdFunc runs with exclusive use of one session.
type CmdFunc func(ctx *pkcs11.Ctx, s pkcs11.SessionHandle) error

// ExecuteCmd executes a command with a session handle in a thread safe way.
func (h *HSM) ExecuteCmd(cmd CmdFunc) error {
	session, release := h.sessions.getHandle()
	defer release()
	return cmd(h.ctx, session)
}

// Close destroys loaded keys, logs out, closes every session and unloads the
// library. It waits for in-flight commands to release their sessions.
func (h *HSM) Close() error {
	sessions := h.sessions.drain()
	var err error
	if len(sessions) > 0 {
		for i, k := range h.keys {
			if k != 0 {
				err = multierr.Append(err, h.ctx.DestroyObject(sessions[0], k))
				h.keys[i] = 0
			}
		}
		err = multierr.Append(err, h.ctx.Logout(sessions[0]))
	}
	for _, s := range sessions {
		err = multierr.Append(err, h.ctx.CloseSession(s))
	}
	err = multierr.Append(err, h.ctx.Finalize())
	h.ctx.Destroy()
	return err
}

// NewSet returns engines backed by h. DMA stays a memory copy.
func NewSet(h *HSM, dma engine.DMA) engine.Set {
	return engine.Set{
		RSA:  &RSA{h: h},
		AES:  &AES{h: h},
		SHA:  &SHA{h: h},
		TRNG: &TRNG{h: h},
		DMA:  dma,
	}
}
