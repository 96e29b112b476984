// Package di hand-wires Pretender's dependency graph. Provide* functions
// mirror the teacher codebase's DI idiom; there is no google/wire codegen
// step here, because a handful of concrete, one-instance-per-process
// dependencies does not earn a generator — they're dependency-injected by
// directly calling constructors in order.
package di

import (
	"context"
	"encoding/hex"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pretender-db/pretender/application/services"
	"github.com/pretender-db/pretender/application/services/retention"
	"github.com/pretender-db/pretender/infrastructure/config"
	"github.com/pretender-db/pretender/infrastructure/crypto"
	sqlstore "github.com/pretender-db/pretender/infrastructure/persistence/sql"
	"github.com/pretender-db/pretender/infrastructure/streamcodec"
	"github.com/pretender-db/pretender/interfaces/facade"
)

// Container holds every long-lived dependency the process needs, built once
// at startup.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB

	CryptoCore *crypto.Core
	Encryption *services.EncryptionHelper

	Tables  *services.TableManager
	Items   *services.ItemManager
	Streams *services.StreamManager

	TTLExpirer     *retention.TTLExpirer
	StreamTrimmer  *retention.StreamTrimmer

	Facade *facade.Facade
}

// NewContainer builds the full dependency graph for cfg.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	db, err := ProvideDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	metadataDAO := sqlstore.NewMetadataDAO()
	if err := metadataDAO.EnsureRelation(ctx, db); err != nil {
		return nil, fmt.Errorf("provisioning metadata relation: %w", err)
	}

	cryptoCore, err := ProvideCryptoCore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building encryption core: %w", err)
	}

	encryptionTables := ProvideEncryptionConfigs(cfg)
	encryption := services.NewEncryptionHelper(cryptoCore, encryptionTables)

	clock := clockwork.NewRealClock()
	tables := services.NewTableManager(db, encryption, logger, clock)
	streamCapture := services.NewStreamCapture()
	items := services.NewItemManager(db, encryption, streamCapture, logger)

	codec := streamcodec.NewCodec(nil)
	streams := services.NewStreamManager(db, codec)

	ttlExpirer := retention.NewTTLExpirer(db, items, encryption, clock, cfg.TTLIntervalSeconds, cfg.TTLPageSize, logger)
	streamTrimmer := retention.NewStreamTrimmer(db, clock, cfg.StreamTrimIntervalSeconds, cfg.StreamRetentionHours, logger)

	f := facade.New(tables, items, streams, logger)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		CryptoCore:    cryptoCore,
		Encryption:    encryption,
		Tables:        tables,
		Items:         items,
		Streams:       streams,
		TTLExpirer:    ttlExpirer,
		StreamTrimmer: streamTrimmer,
		Facade:        f,
	}, nil
}

// ProvideLogger builds the process logger, verbose in development and
// structured-only in production, matching the teacher's per-environment split.
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDB opens and verifies the relational connection backing every
// table's relations.
func ProvideDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// ProvideCryptoCore constructs the Encryption Core from the configured
// master key source: a fixed hex key when MASTER_KEY is set, the keys
// service when KEYS_SERVICE_URL is set, otherwise a random ephemeral key.
func ProvideCryptoCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*crypto.Core, error) {
	var source crypto.MasterKeySource
	switch {
	case cfg.MasterKeyHex != "":
		key, err := hex.DecodeString(cfg.MasterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decoding MASTER_KEY: %w", err)
		}
		return crypto.NewCore(key)
	case cfg.KeysServiceURL != "":
		source = crypto.NewRemoteMasterKeySource(cfg.KeysServiceURL, logger)
	default:
		source = crypto.NewRandomMasterKeySource(logger)
	}

	key, err := source.MasterKey(ctx)
	if err != nil {
		return nil, err
	}
	return crypto.NewCore(key)
}

// ProvideEncryptionConfigs translates Config.EncryptionTables (loaded from
// ENCRYPTION_TABLES_JSON) into the EncryptionHelper's runtime shape.
func ProvideEncryptionConfigs(cfg *config.Config) []services.EncryptionConfig {
	out := make([]services.EncryptionConfig, 0, len(cfg.EncryptionTables))
	for _, t := range cfg.EncryptionTables {
		out = append(out, services.EncryptionConfig{
			TableName:           t.TableName,
			EncryptedAttributes: t.EncryptedAttributes,
			Enabled:             t.Enabled,
		})
	}
	return out
}

// Close releases the container's resources.
func (c *Container) Close() error {
	return c.DB.Close()
}
