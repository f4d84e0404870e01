package main

import (
	"context"
	"encoding/hex"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultmint/at2-replica/pkg/config"
	"github.com/vaultmint/at2-replica/pkg/crypto/bls"
	"github.com/vaultmint/at2-replica/pkg/eventstore"
	"github.com/vaultmint/at2-replica/pkg/metrics"
	"github.com/vaultmint/at2-replica/pkg/server"
	"github.com/vaultmint/at2-replica/pkg/signer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to replica config file")
	flag.Parse()

	logger := log.New(log.Writer(), "[Replica] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	commits := make([][]byte, len(cfg.Group.PeerCommitsHex))
	for i, c := range cfg.Group.PeerCommitsHex {
		raw, err := hex.DecodeString(c)
		if err != nil {
			log.Fatalf("parse peer commit %d: %v", i, err)
		}
		commits[i] = raw
	}
	peerReplicas, err := bls.PublicKeySetFromCommits(cfg.Group.Threshold, commits)
	if err != nil {
		log.Fatalf("parse peer replica group: %v", err)
	}
	ownShare := peerReplicas.PublicKeyShare(cfg.Group.KeyIndex)

	gateway, err := signer.LoadFileGateway(cfg.Signer.SecretKeySharePath, cfg.Group.KeyIndex)
	if err != nil {
		log.Fatalf("load signer key share: %v", err)
	}
	replicaSigner := signer.NewReplicaSigner(ownShare, cfg.Group.KeyIndex, peerReplicas, gateway, logWithPrefix("Signer"))

	var store *eventstore.Store
	if cfg.EventStore.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = eventstore.Open(ctx, eventstore.Config{
			DSN:             cfg.EventStore.DSN,
			MaxOpenConns:    cfg.EventStore.MaxOpenConns,
			MaxIdleConns:    cfg.EventStore.MaxIdleConns,
			ConnMaxLifetime: cfg.EventStore.ConnMaxLifetime.Duration(),
		}, eventstore.WithLogger(logWithPrefix("EventStore")))
		cancel()
		if err != nil {
			log.Fatalf("open event store: %v", err)
		}
		defer store.Close()

		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
		if err := store.MigrateUp(migrateCtx); err != nil {
			migrateCancel()
			log.Fatalf("migrate event store: %v", err)
		}
		migrateCancel()
	} else {
		logger.Printf("no event store DSN configured, running with in-memory wallets only")
	}

	var reg *metrics.Registry
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		reg = metrics.NewRegistry(promReg)
		gatherer = promReg
	}

	handlers := server.NewReplicaHandlers(ownShare, cfg.Group.KeyIndex, peerReplicas, store, replicaSigner, reg, logWithPrefix("ReplicaAPI"))
	mux := server.NewMux(handlers, gatherer)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	go func() {
		logger.Printf("listening on %s", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}
	logger.Printf("stopped")
}

func logWithPrefix(component string) *log.Logger {
	return log.New(log.Writer(), "["+component+"] ", log.LstdFlags)
}
