// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package db_fake

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
)

func TestInsertGet(t *testing.T) {
	ctx := context.Background()
	db := New()

	if _, err := db.Get(ctx, "k"); !errors.Is(err, connector.ErrNotFound) {
		t.Fatalf("Get() on empty db = %v, want ErrNotFound", err)
	}

	v1 := []byte("first")
	if err := db.Insert(ctx, "k", v1); err != nil {
		t.Fatal(err)
	}
	// The stored value must not alias the caller's buffer.
	v1[0] = 'X'
	if err := db.Insert(ctx, "k", []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("second"), got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
	if n := db.Versions("k"); n != 2 {
		t.Errorf("Versions() = %d, want 2", n)
	}

	got[0] = 'Y'
	again, _ := db.Get(ctx, "k")
	if string(again) != "second" {
		t.Errorf("Get() returned an aliased buffer")
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	db := New()
	if err := db.Insert(ctx, "k", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Insert() = %v, want context.Canceled", err)
	}
	if _, err := db.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get() = %v, want context.Canceled", err)
	}
	if n := db.Versions("k"); n != 0 {
		t.Errorf("Versions() = %d, want 0", n)
	}
}
