// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package main implements the key wrap service load test. Parallel clients
// hammer the service so that calls contend for the engines and the scratch
// arena.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/transport/auth"
	"github.com/lowRISC/asu-keywrap/src/transport/grpconn"
)

const (
	// Maximum number of buffered calls. This limits the number of concurrent
	// calls to ensure the program does not run out of memory.
	maxBufferedCallResults = 100000
)

var (
	address             = flag.String("address", "", "the key wrap server address to connect to; required")
	enableTLS           = flag.Bool("enable_tls", false, "Enable mTLS secure channel; optional")
	clientKey           = flag.String("client_key", "", "File path to the PEM encoding of the client's private key")
	clientCert          = flag.String("client_cert", "", "File path to the PEM encoding of the client's certificate chain")
	caRootCerts         = flag.String("ca_root_certs", "", "File path to the PEM encoding of the CA root certificates")
	operatorID          = flag.String("operator", "", "Operator ID; the token is read from `token_env`")
	tokenEnv            = flag.String("token_env", "ASU_OPERATOR_TOKEN", "Environment variable holding the operator token")
	keyLabel            = flag.String("key_label", "loadtest", "Label of the RSA key used by the test; created when missing")
	parallelClients     = flag.Int("parallel_clients", 0, "The total number of clients to run concurrently")
	totalCallsPerMethod = flag.Int("total_calls_per_method", 0, "The total number of calls to execute during the load test")
	delayPerCall        = flag.Duration("delay_per_call", 10*time.Millisecond, "Delay between client calls")
)

// dial opens one client connection. Tests replace it.
var dial = func(ctx context.Context) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if *enableTLS {
		var err error
		creds, err = grpconn.LoadClientCredentials(*caRootCerts, *clientCert, *clientKey)
		if err != nil {
			return nil, err
		}
	}
	var opts []grpc.DialOption
	if *operatorID != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(auth.TokenCredentials{
			OperatorID: *operatorID,
			Token:      os.Getenv(*tokenEnv),
			Secure:     *enableTLS,
		}))
	}
	return grpconn.Dial(ctx, *address, creds, opts...)
}

// clientTask encapsulates a client connection.
type clientTask struct {
	// id is a unique identifier assigned to the client instance.
	id int

	// results is a channel used to aggregate the results.
	results chan *callResult

	// delayPerCall is the delay applied between calls.
	delayPerCall time.Duration

	conn   *grpc.ClientConn
	client api.KeyWrapServiceClient
}

type callResult struct {
	// id is the client identifier.
	id int
	// err is the error returned by the call, if any.
	err error
}

type clientGroup struct {
	clients []*clientTask
	results chan *callResult
}

func (c *clientTask) setup(ctx context.Context) error {
	conn, err := dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn
	c.client = api.NewKeyWrapServiceClient(conn)
	return nil
}

func (c *clientTask) report(err error) {
	if err != nil {
		log.Printf("error: client id: %d, error: %v", c.id, err)
	}
	c.results <- &callResult{id: c.id, err: err}
	time.Sleep(c.delayPerCall)
}

// callFunc issues `numCalls` calls with key `label` and reports every result
// to `clientTask.results`.
type callFunc func(ctx context.Context, numCalls int, label string, c *clientTask)

// testKeyWrap wraps a fresh secret and unwraps it again. A mismatch counts as
// a failed call.
func testKeyWrap(ctx context.Context, numCalls int, label string, c *clientTask) {
	secret := make([]byte, 32)
	for i := 0; i < numCalls; i++ {
		err := func() error {
			if _, err := rand.Read(secret); err != nil {
				return err
			}
			w, err := c.client.KeyWrap(ctx, &api.KeyWrapRequest{
				KeyLabel:   label,
				Input:      secret,
				AESKeySize: 32,
				HashMode:   "sha2-256",
			})
			if err != nil {
				return err
			}
			u, err := c.client.KeyUnwrap(ctx, &api.KeyUnwrapRequest{
				KeyLabel:   label,
				Wrapped:    w.Wrapped,
				AESKeySize: 32,
				HashMode:   "sha2-256",
			})
			if err != nil {
				return err
			}
			if !bytes.Equal(u.Key, secret) {
				return fmt.Errorf("unwrapped key does not match")
			}
			return nil
		}()
		c.report(err)
	}
}

func testOaepEncrypt(ctx context.Context, numCalls int, label string, c *clientTask) {
	request := &api.OaepEncryptRequest{
		KeyLabel: label,
		Message:  []byte("load test message"),
		HashMode: "sha2-384",
	}
	for i := 0; i < numCalls; i++ {
		_, err := c.client.OaepEncrypt(ctx, request)
		c.report(err)
	}
}

func testPssSign(ctx context.Context, numCalls int, label string, c *clientTask) {
	request := &api.PssSignRequest{
		KeyLabel: label,
		Message:  bytes.Repeat([]byte("load test message "), 64),
		SaltLen:  32,
		HashMode: "sha3-256",
	}
	for i := 0; i < numCalls; i++ {
		_, err := c.client.PssSign(ctx, request)
		c.report(err)
	}
}

func newClientGroup(ctx context.Context, numClients int, delayPerCall time.Duration) (*clientGroup, error) {
	if numClients <= 0 {
		return nil, fmt.Errorf("number of clients must be at least 1, got %d", numClients)
	}

	results := make(chan *callResult, maxBufferedCallResults)
	eg, ctxStart := errgroup.WithContext(ctx)

	log.Printf("Starting %d client instances", numClients)
	clients := make([]*clientTask, numClients)
	for i := 0; i < numClients; i++ {
		i := i
		eg.Go(func() error {
			clients[i] = &clientTask{
				id:           i,
				results:      results,
				delayPerCall: delayPerCall,
			}
			return clients[i].setup(ctxStart)
		})
	}
	if err := eg.Wait(); err != nil {
		(&clientGroup{clients: clients}).close()
		return nil, fmt.Errorf("error during client setup: %v", err)
	}
	return &clientGroup{
		clients: clients,
		results: results,
	}, nil
}

func (cg *clientGroup) close() {
	for _, c := range cg.clients {
		if c != nil && c.conn != nil {
			c.conn.Close()
		}
	}
}

// ensureKey creates the test key unless it already exists.
func ensureKey(ctx context.Context, c *clientTask, label string) error {
	_, err := c.client.CreateKey(ctx, &api.CreateKeyRequest{KeyLabel: label, Bits: 2048})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

// run executes the load test on every client of `cg`, each issuing
// `numCalls` calls.
func run(ctx context.Context, cg *clientGroup, numCalls int, label string, test callFunc) error {
	if numCalls <= 0 {
		return fmt.Errorf("number of calls must be at least 1, got: %d", numCalls)
	}

	eg, ctxTest := errgroup.WithContext(ctx)
	for _, c := range cg.clients {
		c := c
		eg.Go(func() error {
			test(ctxTest, numCalls, label, c)
			return nil
		})
	}

	expectedNumCalls := len(cg.clients) * numCalls
	errCount := 0
	eg.Go(func() error {
		for i := 0; i < expectedNumCalls; i++ {
			r := <-cg.results
			if r.err != nil {
				errCount++
			}
		}
		if errCount > 0 {
			return fmt.Errorf("detected %d call errors", errCount)
		}
		return nil
	})

	return eg.Wait()
}

type result struct {
	testName string
	pass     bool
	msg      string
}

var tests = []struct {
	testName string
	testFunc callFunc
}{
	{testName: "KeyWrap", testFunc: testKeyWrap},
	{testName: "OaepEncrypt", testFunc: testOaepEncrypt},
	{testName: "PssSign", testFunc: testPssSign},
}

// runAll runs every test with a fresh client group.
func runAll(ctx context.Context, numClients, numCalls int, delay time.Duration, label string) []result {
	results := []result{}
	for _, t := range tests {
		log.Printf("test: %q", t.testName)
		current := result{testName: t.testName}
		cg, err := newClientGroup(ctx, numClients, delay)
		if err != nil {
			current.msg = fmt.Sprintf("failed to initialize client tasks: %v", err)
			results = append(results, current)
			continue
		}
		err = ensureKey(ctx, cg.clients[0], label)
		if err == nil {
			err = run(ctx, cg, numCalls, label, t.testFunc)
		}
		cg.close()
		if err != nil {
			current.msg = fmt.Sprintf("failed to execute test: %v", err)
			results = append(results, current)
			continue
		}
		current.pass = true
		current.msg = "PASS"
		results = append(results, current)
	}
	return results
}

func main() {
	flag.Parse()

	if *address == "" {
		log.Fatalf("address is required")
	}

	results := runAll(context.Background(), *parallelClients, *totalCallsPerMethod, *delayPerCall, *keyLabel)
	failed := 0
	for _, r := range results {
		if !r.pass {
			failed++
		}
		log.Printf("test: %q, result: %v, msg: %q", r.testName, r.pass, r.msg)
	}
	if failed > 0 {
		log.Fatalf("Test FAIL!. %d tests failed", failed)
	}
	log.Print("Test PASS!")
}
