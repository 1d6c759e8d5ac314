// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// Package main implements the ASU key wrap server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/engine/hsm"
	"github.com/lowRISC/asu-keywrap/src/asu/engine/soft"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
	"github.com/lowRISC/asu-keywrap/src/asusvc/api"
	"github.com/lowRISC/asu-keywrap/src/asusvc/services"
	"github.com/lowRISC/asu-keywrap/src/keystore"
	"github.com/lowRISC/asu-keywrap/src/keystore/connector"
	"github.com/lowRISC/asu-keywrap/src/keystore/db_fake"
	"github.com/lowRISC/asu-keywrap/src/keystore/etcd"
	"github.com/lowRISC/asu-keywrap/src/keystore/filedb"
	"github.com/lowRISC/asu-keywrap/src/logger"
	"github.com/lowRISC/asu-keywrap/src/transport/auth"
	"github.com/lowRISC/asu-keywrap/src/transport/grpconn"
	"github.com/lowRISC/asu-keywrap/src/utils"
)

var (
	port        = flag.Int("port", 0, "The port to bind the server on; required")
	configDir   = flag.String("config_dir", "", "Path to the configuration directory")
	configFile  = flag.String("config_file", "", "Configuration file name relative to `config_dir`; optional")
	enableTLS   = flag.Bool("enable_tls", false, "Enable mTLS secure channel; optional")
	serviceKey  = flag.String("service_key", "", "File path to the PEM encoding of the server's private key")
	serviceCert = flag.String("service_cert", "", "File path to the PEM encoding of the server's certificate chain")
	caRootCerts = flag.String("ca_root_certs", "", "File path to the PEM encoding of the CA root certificates")
	version     = flag.Bool("version", false, "Print version information and exit")
)

type storeConfig struct {
	// Backend is one of "memory", "sqlite" or "etcd".
	Backend string `yaml:"backend" default:"memory"`

	// Path is the sqlite database file.
	Path string `yaml:"path"`

	// Endpoints are the etcd cluster endpoints.
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
}

type config struct {
	// Engine is "soft" or "hsm".
	Engine       string     `yaml:"engine" default:"soft"`
	HSM          hsm.Config `yaml:"hsm"`
	SHAChunkSize int        `yaml:"sha_chunk_size"`

	// SelfTest runs the key wrap known answer test before serving.
	SelfTest bool `yaml:"self_test" default:"true"`

	// KEKFile holds the hex encoded key encryption key of the key store. The
	// memory backend uses a random KEK when it is empty.
	KEKFile string      `yaml:"kek_file"`
	Store   storeConfig `yaml:"store"`

	// Operators enables token authentication when not empty.
	Operators []auth.Operator `yaml:"operators"`

	LogFile         string        `yaml:"log_file"`
	LogLevel        string        `yaml:"log_level" default:"info"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	if *configFile == "" {
		return cfg, utils.SetDefaults(cfg)
	}
	if err := utils.LoadConfig(*configDir, *configFile, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngines returns the engine set selected by cfg and a function
// releasing it.
func openEngines(cfg *config) (engine.Set, func() error, error) {
	switch cfg.Engine {
	case "soft":
		return soft.NewSet(soft.Options{SHAChunkSize: cfg.SHAChunkSize}), func() error { return nil }, nil
	case "hsm":
		h, err := hsm.New(cfg.HSM)
		if err != nil {
			return engine.Set{}, nil, err
		}
		return hsm.NewSet(h, &soft.DMA{}), h.Close, nil
	}
	return engine.Set{}, nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// openStore returns the key store selected by cfg and a function closing it.
func openStore(cfg *config, lg *logger.ModLogger) (*keystore.Store, func() error, error) {
	var (
		db      connector.Connector
		closeDB = func() error { return nil }
		err     error
	)
	switch cfg.Store.Backend {
	case "memory":
		db = db_fake.New()
	case "sqlite":
		if cfg.Store.Path == "" {
			return nil, nil, fmt.Errorf("`store.path` missing for the sqlite backend")
		}
		db, err = filedb.New(cfg.Store.Path)
	case "etcd":
		c, dialErr := etcd.Dial(cfg.Store.Endpoints, cfg.Store.DialTimeout, lg.Zap())
		if dialErr != nil {
			return nil, nil, dialErr
		}
		db, closeDB = etcd.New(c), c.Close
	default:
		return nil, nil, fmt.Errorf("unknown key store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, nil, err
	}
	s, err := keystore.New(db)
	if err != nil {
		return nil, nil, multierr.Append(err, closeDB())
	}
	return s, closeDB, nil
}

// loadKEK writes the key store KEK into its engine slot.
func loadKEK(cfg *config, e engine.Set) error {
	var kek []byte
	switch {
	case cfg.KEKFile != "":
		var err error
		if kek, err = utils.ReadHexFile(cfg.KEKFile); err != nil {
			return err
		}
	case cfg.Store.Backend == "memory":
		kek = make([]byte, engine.AES256)
		if err := e.TRNG.GetRandomNumbers(kek); err != nil {
			return err
		}
	default:
		return fmt.Errorf("`kek_file` missing for the %s backend", cfg.Store.Backend)
	}
	defer clear(kek)
	return keystore.LoadKEK(e, kek)
}

func startServer(cfg *config, srv *services.Server, lg *logger.ModLogger) (*grpc.Server, *health.Server, error) {
	opts := []grpc.ServerOption{}
	if *enableTLS {
		credentials, err := grpconn.LoadServerCredentials(*caRootCerts, *serviceCert, *serviceKey)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.Creds(credentials))
	}
	switch {
	case len(cfg.Operators) > 0:
		store, err := auth.NewStore(cfg.Operators)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.UnaryInterceptor(auth.NewInterceptor(store, *enableTLS, lg).Unary))
	case *enableTLS:
		opts = append(opts, grpc.UnaryInterceptor(grpconn.CheckEndpointInterceptor))
	}

	server := grpc.NewServer(opts...)
	api.RegisterKeyWrapServiceServer(server, srv)
	hs := health.NewServer()
	hs.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs, nil
}

func run(ctx context.Context) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := logger.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	lg, err := logger.NewLogger(cfg.LogFile, level)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, lg.Close()) }()

	e, closeEngines, err := openEngines(cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s engines: %v", cfg.Engine, err)
	}
	defer func() { err = multierr.Append(err, closeEngines()) }()

	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		return fmt.Errorf("failed to open key store: %v", err)
	}
	defer func() { err = multierr.Append(err, closeStore()) }()
	if err := loadKEK(cfg, e); err != nil {
		return fmt.Errorf("failed to load KEK: %v", err)
	}

	pool := scratch.NewPool()
	defer func() { err = multierr.Append(err, pool.Close()) }()
	if !pool.Locked() {
		lg.Zap().Warn("scratch arena is not locked in memory")
	}

	srv, err := services.NewKeyWrapServer(services.Options{
		Engines: e,
		Pool:    pool,
		Store:   store,
		Logger:  lg,
	})
	if err != nil {
		return err
	}
	if cfg.SelfTest {
		if err := srv.SelfTest(ctx); err != nil {
			return fmt.Errorf("self test failed: %v", err)
		}
		lg.Zap().Info("self test passed")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		return fmt.Errorf("server failed to listen: %v", err)
	}
	server, hs, err := startServer(cfg, srv, lg)
	if err != nil {
		return err
	}
	lg.Zap().Info("ASU key wrap server is now listening",
		zap.Int("port", *port), zap.String("engine", cfg.Engine), zap.String("store", cfg.Store.Backend))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(listener)
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			server.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(cfg.ShutdownTimeout):
			server.Stop()
		}
		st := srv.Stats()
		lg.Zap().Info("server stopped", zap.Uint64("completed", st.Completed), zap.Uint64("reinvoked", st.Reinvoked))
		return nil
	})
	return g.Wait()
}

func main() {
	// Parse command-line flags.
	flag.Parse()
	// If the version flag true then print the version and exit,
	// otherwise only print the vertion to the to log
	utils.PrintVersion(*version)

	if *port == 0 {
		log.Fatalf("`port` parameter missing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		log.Fatalf("ASU server fatal error: %v", err)
	}
}
