package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/covault/covault/pkg/audit"
	"github.com/covault/covault/pkg/config"
	"github.com/covault/covault/pkg/encryption"
	"github.com/covault/covault/pkg/encryption/aesgcm"
	"github.com/covault/covault/pkg/identity"
	"github.com/covault/covault/pkg/ledger"
	"github.com/covault/covault/pkg/logger"
	"github.com/covault/covault/pkg/metrics"
	"github.com/covault/covault/pkg/secretstore"
	"github.com/covault/covault/pkg/storage"
	"github.com/covault/covault/pkg/vault"
)

const purgeInterval = time.Hour

func main() {
	configPath := flag.String("config", "config/config.toml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting covaultd",
		zap.String("config_file", *configPath),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Bool("retention_enabled", cfg.Retention.PurgeDeletedAfter > 0),
	)

	metrics.SetEnabled(cfg.Metrics.Enabled)
	metrics.Init()

	var store storage.Store
	switch cfg.Storage.Driver {
	case "sqlite":
		log.Info("Initializing SQLite storage", zap.String("path", cfg.Storage.Path))
		store, err = storage.NewSQLiteStore(cfg.Storage.Path, cfg.Storage.BusyTimeout, cfg.Storage.TxTimeout, log)
	case "postgres":
		log.Info("Initializing Postgres storage")
		store, err = storage.NewPostgresStore(cfg.Storage.DSN, cfg.Storage.TxTimeout, log)
	default:
		log.Fatal("Unknown storage driver", zap.String("driver", cfg.Storage.Driver))
	}
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	keyConfigs := make([]aesgcm.KeyConfig, 0, len(cfg.Encryption.Keys))
	for _, key := range cfg.Encryption.Keys {
		keyConfigs = append(keyConfigs, aesgcm.KeyConfig{Version: key.Version, FilePath: key.File})
	}
	provider, err := aesgcm.NewProvider(keyConfigs, log)
	if err != nil {
		log.Fatal("Failed to initialize encryption provider", zap.Error(err))
	}
	manager, err := encryption.NewManager([]encryption.Provider{provider}, log)
	if err != nil {
		log.Fatal("Failed to initialize encryption manager", zap.Error(err))
	}

	if cfg.Identity.JWTSecretFile != "" {
		if _, err := identity.NewVerifierFromFile(cfg.Identity.JWTSecretFile, log); err != nil {
			log.Fatal("Failed to load JWT verification secret", zap.Error(err))
		}
		log.Info("Token verifier ready", zap.String("secret_file", cfg.Identity.JWTSecretFile))
	}

	versionLedger := ledger.New(store, log)
	recorder := audit.NewRecorder(store, log)
	secrets := secretstore.New(store, manager, versionLedger, log)
	service := vault.NewService(store, secrets, versionLedger, recorder, cfg.Retry, cfg.Retention, log)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.Metrics, log)
		if err := metricsServer.Start(); err != nil {
			log.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	if cfg.Retention.PurgeDeletedAfter > 0 {
		go runRetention(ctx, service, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down covaultd")
	stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	log.Info("covaultd stopped")
}

// runRetention purges soft-deleted secrets past the retention window,
// once at startup and then on a fixed interval.
func runRetention(ctx context.Context, service *vault.Service, log *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		purged, err := service.PurgeDeleted(ctx)
		if err != nil {
			log.Error("Retention purge failed", zap.Error(err))
		} else if purged > 0 {
			log.Info("Retention purge completed", zap.Int64("purged", purged))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
