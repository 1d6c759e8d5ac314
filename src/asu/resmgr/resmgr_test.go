// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package resmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
)

func TestAllocateRelease(t *testing.T) {
	m := New()
	release, err := m.Allocate(context.Background(), "wrap", RSA, AES, DMA, AES)
	if err != nil {
		t.Fatalf("Allocate() = %v", err)
	}
	for _, id := range []Resource{DMA, AES, RSA} {
		if got := m.Owner(id); got != "wrap" {
			t.Errorf("Owner(%v) = %q, want %q", id, got, "wrap")
		}
	}
	if got := m.Owner(SHA); got != "" {
		t.Errorf("Owner(SHA) = %q, want free", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Allocate(ctx, "other", SHA, AES); !errcode.Has(err, errcode.ResourceBusy) {
		t.Fatalf("Allocate(busy) = %v, want ResourceBusy", err)
	}
	// The failed request must not keep SHA.
	if got := m.Owner(SHA); got != "" {
		t.Errorf("Owner(SHA) after failed allocation = %q, want free", got)
	}

	release()
	release()
	for _, id := range All {
		if got := m.Owner(id); got != "" {
			t.Errorf("Owner(%v) after release = %q, want free", id, got)
		}
	}
}

func TestAllocateInvalid(t *testing.T) {
	m := New()
	if _, err := m.Allocate(context.Background(), "", DMA); !errcode.Has(err, errcode.InvalidParam) {
		t.Errorf("Allocate(no requester) = %v, want InvalidParam", err)
	}
	if _, err := m.Allocate(context.Background(), "x"); !errcode.Has(err, errcode.InvalidParam) {
		t.Errorf("Allocate(no ids) = %v, want InvalidParam", err)
	}
	if _, err := m.Allocate(context.Background(), "x", Resource(17)); !errcode.Has(err, errcode.InvalidParam) {
		t.Errorf("Allocate(unknown) = %v, want InvalidParam", err)
	}
}

func TestAllocateSerializes(t *testing.T) {
	m := New()
	var (
		mu     sync.Mutex
		inside int
		peak   int
		wg     sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(reverse bool) {
			defer wg.Done()
			ids := []Resource{DMA, RSA, TRNG}
			if reverse {
				ids = []Resource{TRNG, RSA, DMA}
			}
			release, err := m.Allocate(context.Background(), "worker", ids...)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			mu.Lock()
			inside++
			if inside > peak {
				peak = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}(i%2 == 1)
	}
	wg.Wait()
	if peak != 1 {
		t.Errorf("peak holders = %d, want 1", peak)
	}
}

func TestNormalize(t *testing.T) {
	got, err := normalize([]Resource{TRNG, DMA, TRNG, SHA})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Resource{DMA, SHA, TRNG}, got); diff != "" {
		t.Errorf("normalize() mismatch (-want +got):\n%s", diff)
	}
}
