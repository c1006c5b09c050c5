// Package main provides axond, the axon blob-store daemon: it loads a
// JSONC config, opens the on-disk storage, and serves the RPC surface
// over WebSocket until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/axonhq/axon/internal/axon"
	"github.com/axonhq/axon/internal/capability"
	"github.com/axonhq/axon/internal/config"
	"github.com/axonhq/axon/internal/logging"
	"github.com/axonhq/axon/internal/rpc"
	"github.com/axonhq/axon/pkg/fs"
)

func main() {
	configPath := flag.String("config", "./axon.json", "path to the JSONC config file")
	debug := flag.Bool("debug", false, "enable development-profile logging")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := run(*configPath, *debug, sigCh); err != nil {
		fmt.Fprintf(os.Stderr, "axond: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, debug bool, sigCh <-chan os.Signal) error {
	cfg, err := config.Load(configPath, false)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	grants := capability.Table{}

	if cfg.GrantsFile != "" {
		grants, err = capability.LoadGrantsFile(cfg.GrantsFile)
		if err != nil {
			return fmt.Errorf("load grants file: %w", err)
		}
	}

	lockPath := filepath.Join(cfg.DataDir, "axond.lock")

	dataDirLock, err := fs.NewLocker(fs.NewReal()).TryLock(lockPath)
	if err != nil {
		return fmt.Errorf("acquire data dir lock %q (is another axond already running?): %w", lockPath, err)
	}
	defer func() {
		if err := dataDirLock.Close(); err != nil {
			log.Error("release data dir lock", zap.Error(err))
		}
	}()

	svc, err := axon.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage at %s: %w", cfg.DataDir, err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error("close storage", zap.Error(err))
		}
	}()

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}

	if err := announceAddr(cfg.DataDir, listener.Addr().String()); err != nil {
		log.Warn("failed to write address announce file", zap.Error(err))
	}

	server := rpc.NewServer(svc, grants, log)

	httpServer := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		log.Info("listening", zap.String("addr", listener.Addr().String()), zap.String("data_dir", cfg.DataDir))

		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err

			return
		}

		serveErr <- nil
	}()

	select {
	case <-sigCh:
		log.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		return <-serveErr
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	}
}

// announceAddr atomically writes the actual listen address into the data
// dir, so tooling (axonctl, axon-seed, tests) can discover the bound port
// when the config requests an ephemeral one ("127.0.0.1:0").
func announceAddr(dataDir, addr string) error {
	path := filepath.Join(dataDir, "axond.addr")

	if err := atomic.WriteFile(path, strings.NewReader(addr)); err != nil {
		return fmt.Errorf("announce addr: %w", err)
	}

	return nil
}
