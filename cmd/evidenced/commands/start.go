package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carbonledger/evidenced/internal/logger"
	"github.com/carbonledger/evidenced/pkg/admin"
	"github.com/carbonledger/evidenced/pkg/api"
	"github.com/carbonledger/evidenced/pkg/auth"
	"github.com/carbonledger/evidenced/pkg/blobstore"
	blobfs "github.com/carbonledger/evidenced/pkg/blobstore/fs"
	blobs3 "github.com/carbonledger/evidenced/pkg/blobstore/s3"
	"github.com/carbonledger/evidenced/pkg/catalog"
	"github.com/carbonledger/evidenced/pkg/config"
	"github.com/carbonledger/evidenced/pkg/digest"
	"github.com/carbonledger/evidenced/pkg/ingest"
	"github.com/carbonledger/evidenced/pkg/metrics"
	promMetrics "github.com/carbonledger/evidenced/pkg/metrics/prometheus"
	"github.com/carbonledger/evidenced/pkg/replica"
	"github.com/carbonledger/evidenced/pkg/replica/kubo"
	"github.com/carbonledger/evidenced/pkg/replica/pinsvc"
	"github.com/carbonledger/evidenced/pkg/retrieval"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the evidenced server",
	Long: `Start the evidenced HTTP server.

All configuration comes from environment variables. The minimum viable
setup needs a storage driver and the application keyring:

  STORAGE_DRIVER=local LOCAL_STORAGE_PATH=./data/objects \
  HMAC_APP_KEYS=registry:secret UPLOAD_TOKEN_SECRET=<32+ chars> \
  evidenced start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stdout",
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Metrics first, so the collectors created below land in the registry.
	if cfg.MetricsEnabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	} else {
		logger.Info("metrics collection disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := catalog.New(&catalog.Config{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	if cfg.DatabaseURL != "" {
		logger.Info("catalog ready", logger.String("backend", "postgres"))
	} else {
		logger.Info("catalog ready", logger.String("backend", "sqlite"), logger.String("path", cfg.SQLitePath))
	}

	blobs, err := buildBlobstore(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("object store ready", logger.String(logger.KeyStoreType, cfg.StorageDriver))

	pinner, err := buildPinner(cfg)
	if err != nil {
		return err
	}
	if pinner != nil {
		logger.Info("secondary replica enabled", logger.String("mode", cfg.IPFSMode))
	}

	keyring, err := auth.ParseKeyring(cfg.HMACAppKeys)
	if err != nil {
		return fmt.Errorf("failed to parse application keyring: %w", err)
	}

	tokens, err := auth.NewUploadTokenIssuer(cfg.UploadTokenSecretValue(), cfg.UploadSessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create upload token issuer: %w", err)
	}

	var jwtService *auth.JWTService
	if cfg.JWTSecret != "" {
		jwtService, err = auth.NewJWTService(auth.JWTConfig{Secret: cfg.JWTSecret})
		if err != nil {
			return fmt.Errorf("failed to create JWT service: %w", err)
		}
		logger.Info("bearer authentication enabled")
	}

	ingestMetrics := promMetrics.NewIngestMetrics()
	hasher := digest.NewEngine(ingestMetrics)

	ingestSvc, err := ingest.New(ingest.Config{
		Catalog:        store,
		Blobs:          blobs,
		Pinner:         pinner,
		Hasher:         hasher,
		Tokens:         tokens,
		Metrics:        ingestMetrics,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SessionTTL:     cfg.UploadSessionTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create ingestion service: %w", err)
	}

	deps := api.Deps{
		Ingest:      ingestSvc,
		Retrieval:   retrieval.New(store, blobs, ingestMetrics),
		Admin:       admin.New(store, blobs, pinner, hasher),
		Keyring:     keyring,
		JWT:         jwtService,
		PublicRead:  cfg.PublicRead,
		CORSOrigins: cfg.CORSOrigins(),
		Readiness: func(ctx context.Context) error {
			sqlDB, err := store.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if cfg.StorageDriver == "local" {
		deps.LocalObjects = blobs
	}

	server := api.NewServer(api.ServerConfig{
		Port:            cfg.Port,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, api.NewRouter(deps))

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running", logger.Int("port", server.Port()))

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", logger.Err(err))
			return err
		}
		logger.Info("server stopped")
	}

	return nil
}

// buildBlobstore creates the object store selected by STORAGE_DRIVER.
func buildBlobstore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.StorageDriver {
	case "s3":
		client, err := blobs3.NewClientFromConfig(ctx,
			cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3ForcePathStyle)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		store, err := blobs3.New(ctx, blobs3.Config{
			Client:  client,
			Bucket:  cfg.S3Bucket,
			Metrics: promMetrics.NewBlobstoreMetrics("s3"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		return store, nil

	case "local":
		baseURL := cfg.LocalPublicBaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d/local-objects", cfg.Port)
		}
		store, err := blobfs.New(blobfs.Config{
			Root:          cfg.LocalStoragePath,
			PublicBaseURL: baseURL,
			Metrics:       promMetrics.NewBlobstoreMetrics("local"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create local store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.StorageDriver)
	}
}

// buildPinner creates the optional IPFS replica client. Returns nil when
// replication is disabled.
func buildPinner(cfg *config.Config) (replica.Pinner, error) {
	if !cfg.IPFSEnabled {
		return nil, nil
	}

	switch cfg.IPFSMode {
	case "node":
		client, err := kubo.New(kubo.Config{
			APIURL:     cfg.IPFSAPIURL,
			GatewayURL: cfg.IPFSGatewayURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create IPFS node client: %w", err)
		}
		return client, nil

	case "pinned":
		client, err := pinsvc.New(pinsvc.Config{
			APIURL:     cfg.IPFSAPIURL,
			APIKey:     cfg.IPFSPinAPIKey,
			GatewayURL: cfg.IPFSGatewayURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pinning service client: %w", err)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown IPFS mode: %s", cfg.IPFSMode)
	}
}
