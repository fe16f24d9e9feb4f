package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"reportixi/agent"
	"reportixi/config"
	"reportixi/crypto"
	"reportixi/discovery"
	"reportixi/logging"
	"reportixi/models"
	"reportixi/storage"
)

func main() {
	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("startup failed: %v (edit %s)", err, cfgPath)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("startup failed while building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, cfgPath, logger.Logger); err != nil {
		logger.Fatal("report.ixi stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, cfgPath string, logger *zap.Logger) error {
	privateKey, created, err := crypto.LoadOrCreateSigningKey(cfg.Ed25519PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("prepare Ed25519 key: %w", err)
	}
	fingerprint := crypto.KeyFingerprint(privateKey.Public().(ed25519.PublicKey))
	if created {
		logger.Info("generated new signing key", zap.String("path", cfg.Ed25519PrivateKeyPath))
	}

	store, err := storage.OpenPath(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("journal close error", zap.Error(err))
		}
	}()

	metadataFile := config.NewMetadataFile(cfg.MetadataPath)
	localUUID, stored, err := metadataFile.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	var identity *models.Identity
	proposed := localUUID
	if stored {
		identity = models.NewIdentity(localUUID, privateKey)
		if err := store.RecordLocalUUID(localUUID, storage.UUIDOriginMetadataFile); err != nil {
			return fmt.Errorf("journal local uuid: %w", err)
		}
	} else {
		identity = models.NewIdentity("", privateKey)
	}

	neighbors, err := cfg.NeighborAddresses(nil)
	if err != nil {
		return err
	}
	rcs, err := cfg.RCSAddress(nil)
	if err != nil {
		return err
	}
	wait, err := cfg.BootstrapWait()
	if err != nil {
		return err
	}

	var broadcaster *discovery.Broadcaster
	if cfg.Advertise {
		uuid, _ := identity.UUID()
		broadcaster, err = discovery.StartBroadcaster(discovery.Config{
			Name:             cfg.Name,
			ReportPort:       cfg.ReportPort,
			ReportIxiVersion: agent.ReportIxiVersion,
			KeyFingerprint:   fingerprint,
			UUID:             uuid,
		})
		if err != nil {
			logger.Warn("mdns advertisement failed", zap.Error(err))
		} else {
			defer broadcaster.Stop()
		}
	}

	a, err := agent.New(agent.Options{
		ListenAddress:    cfg.ListenAddress(),
		Identity:         identity,
		Registry:         models.NewRegistry(neighbors),
		RCS:              rcs,
		UUIDStore:        metadataFile,
		ProposedUUID:     proposed,
		BootstrapTimeout: wait,
		Journal:          store,
		MetricsAddress:   cfg.MetricsAddress,
		Broadcaster:      broadcaster,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	logger.Info("report.ixi starting",
		zap.String("name", cfg.Name),
		zap.String("config", cfgPath),
		zap.String("key_fingerprint", fingerprint),
		zap.Bool("uuid_stored", stored))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("report.ixi shutting down")
	return a.Shutdown()
}
