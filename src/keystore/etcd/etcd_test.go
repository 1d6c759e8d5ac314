// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package etcd_test implements unit tests for the etcd package.
package etcd_test

import (
	"context"
	"errors"
	"testing"

	mvccpb "go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
	"github.com/lowRISC/asu-keywrap/src/keystore/etcd"
)

// mockTxn implements the clientv3.Txn interface for testing purposes.
// This interface is required by `mockKV` below.
type mockTxn struct{}

func (m *mockTxn) If(cs ...clientv3.Cmp) clientv3.Txn {
	return m
}

func (m *mockTxn) Then(ops ...clientv3.Op) clientv3.Txn {
	return m
}

func (m *mockTxn) Else(ops ...clientv3.Op) clientv3.Txn {
	return m
}

func (m *mockTxn) Commit() (*clientv3.TxnResponse, error) {
	return new(clientv3.TxnResponse), nil
}

// mockKV implements the clientv3.KV interface for testing purposes.
type mockKV struct {
	// Values stored by `Put`, returned by `Get`.
	values map[string]string

	putError error
	getError error

	mockTxn *mockTxn
}

func newMockKV() *mockKV {
	return &mockKV{values: map[string]string{}, mockTxn: &mockTxn{}}
}

func (m *mockKV) Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	if m.putError != nil {
		return nil, m.putError
	}
	m.values[key] = val
	return &clientv3.PutResponse{}, nil
}

func (m *mockKV) Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	res := &clientv3.GetResponse{}
	if v, ok := m.values[key]; ok {
		res.Kvs = append(res.Kvs, &mvccpb.KeyValue{Key: []byte(key), Value: []byte(v)})
	}
	return res, nil
}

func (m *mockKV) Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	delete(m.values, key)
	return &clientv3.DeleteResponse{}, nil
}

func (m *mockKV) Compact(ctx context.Context, rev int64, opts ...clientv3.CompactOption) (*clientv3.CompactResponse, error) {
	return &clientv3.CompactResponse{}, nil
}

func (m *mockKV) Do(ctx context.Context, op clientv3.Op) (clientv3.OpResponse, error) {
	return clientv3.OpResponse{}, nil
}

func (m *mockKV) Txn(ctx context.Context) clientv3.Txn {
	return m.mockTxn
}

func TestInsertGet(t *testing.T) {
	kv := newMockKV()
	c := etcd.New(kv)

	if err := c.Insert(context.Background(), "/asu/keys/foo", []byte("bar")); err != nil {
		t.Fatalf("failed to insert data: %v", err)
	}
	if err := c.Insert(context.Background(), "/asu/keys/foo", []byte("baz")); err != nil {
		t.Fatalf("failed to replace data: %v", err)
	}

	res, err := c.Get(context.Background(), "/asu/keys/foo")
	if err != nil {
		t.Fatalf("failed to get record: %v", err)
	}
	if string(res) != "baz" {
		t.Errorf("expected: %q, got: %q", "baz", res)
	}
}

func TestErrors(t *testing.T) {
	kv := newMockKV()
	c := etcd.New(kv)

	if _, err := c.Get(context.Background(), "missing"); !errors.Is(err, connector.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	kv.putError = errors.New("cluster unavailable")
	if err := c.Insert(context.Background(), "k", []byte("v")); err == nil {
		t.Errorf("Insert() with a failing cluster succeeded")
	}
	kv.getError = errors.New("cluster unavailable")
	if _, err := c.Get(context.Background(), "k"); err == nil || errors.Is(err, connector.ErrNotFound) {
		t.Errorf("Get() with a failing cluster = %v", err)
	}
}
