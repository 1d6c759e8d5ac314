// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package grpconn implements the gRPC connection utility functions
package grpconn

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/lowRISC/asu-keywrap/src/utils"
)

// loadTLS reads the CA roots and the key pair shared by both sides of an
// mTLS connection.
func loadTLS(rootsFilename, certFilename, keyFilename string) (*x509.CertPool, tls.Certificate, error) {
	roots, err := utils.ReadFile(rootsFilename)
	if err != nil {
		return nil, tls.Certificate{}, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(roots) {
		return nil, tls.Certificate{}, fmt.Errorf("failed to add root CA certificates from %q", rootsFilename)
	}
	cert, err := tls.LoadX509KeyPair(certFilename, keyFilename)
	if err != nil {
		return nil, tls.Certificate{}, fmt.Errorf("failed to load key pair %q: %v", certFilename, err)
	}
	return pool, cert, nil
}

// LoadServerCredentials returns server side mTLS transport credentials that
// require a client certificate issued by a CA in `rootsFilename`.
func LoadServerCredentials(rootsFilename, certFilename, keyFilename string) (credentials.TransportCredentials, error) {
	pool, cert, err := loadTLS(rootsFilename, certFilename, keyFilename)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// LoadClientCredentials returns client side mTLS transport credentials
// trusting the server CAs in `rootsFilename`.
func LoadClientCredentials(rootsFilename, certFilename, keyFilename string) (credentials.TransportCredentials, error) {
	pool, cert, err := loadTLS(rootsFilename, certFilename, keyFilename)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Dial connects to addr. A nil creds dials without transport security.
func Dial(ctx context.Context, addr string, creds credentials.TransportCredentials, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if creds == nil {
		creds = insecure.NewCredentials()
	}
	opts = append(opts, grpc.WithTransportCredentials(creds), grpc.WithBlock())
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %q: %v", addr, err)
	}
	return conn, nil
}

// ExtractClientIP returns the host part of the peer address.
func ExtractClientIP(ctx context.Context) (string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", fmt.Errorf("peer not found in context")
	}
	// Get the client's IP & DNS from the context
	clientIP, _, err := net.SplitHostPort(p.Addr.String())
	return clientIP, err
}

// lookupAddr is replaced in tests.
var lookupAddr = net.LookupAddr

// endpointMatches reports whether cert names clientIP, either as an IP SAN
// or through the short host name its reverse lookup resolves to. The
// host name is returned for error messages.
func endpointMatches(clientIP string, cert *x509.Certificate) (bool, string) {
	for _, ip := range cert.IPAddresses {
		if clientIP == ip.String() {
			return true, ""
		}
	}
	names, err := lookupAddr(clientIP)
	if err != nil || len(names) == 0 {
		return false, "no host"
	}
	host := strings.ToLower(strings.Split(names[0], ".")[0])
	for _, dns := range cert.DNSNames {
		if host == strings.ToLower(dns) {
			return true, host
		}
	}
	return false, host
}

// CheckEndpointInterceptor is a unary server interceptor admitting a call
// only when the peer's address appears in its client certificate.
func CheckEndpointInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return nil, status.Errorf(codes.Unauthenticated, "peer not found in context")
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok || len(tlsInfo.State.PeerCertificates) == 0 {
		return nil, status.Errorf(codes.Unauthenticated, "no client certificate")
	}
	clientIP, _ := ExtractClientIP(ctx)
	if ok, host := endpointMatches(clientIP, tlsInfo.State.PeerCertificates[0]); !ok {
		return nil, status.Errorf(codes.PermissionDenied, "client IP %q or DNS name %s does not match the IP or DNS name in the certificate", clientIP, host)
	}
	return handler(ctx, req)
}
