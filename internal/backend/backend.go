// Package backend builds the storage and label-reading backends selected by
// the configuration. It is shared by the server and the admin CLI.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vbonduro/fgsamples/internal/blobstore"
	"github.com/vbonduro/fgsamples/internal/blobstore/local"
	"github.com/vbonduro/fgsamples/internal/blobstore/s3"
	"github.com/vbonduro/fgsamples/internal/config"
	"github.com/vbonduro/fgsamples/internal/db"
	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/docstore/mongodoc"
	"github.com/vbonduro/fgsamples/internal/docstore/sqldoc"
	"github.com/vbonduro/fgsamples/internal/labelreader"
	"github.com/vbonduro/fgsamples/internal/labelreader/claude"
	"github.com/vbonduro/fgsamples/internal/labelreader/ollama"
)

// OpenDocstore connects to the configured document store, applying SQL
// migrations where relevant. Closing the store closes the connection.
func OpenDocstore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docstore.Store, error) {
	switch cfg.DocstoreBackend {
	case "sqlite":
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite document store", "path", cfg.DBPath)
		return sqldoc.New(database, db.DriverSQLite), nil
	case "postgres":
		database, err := db.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres document store")
		return sqldoc.New(database, db.DriverPostgres), nil
	case "mongo":
		store, err := mongodoc.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("using mongodb document store", "database", cfg.MongoDatabase)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown docstore backend %q", cfg.DocstoreBackend)
	}
}

// OpenBlobStore returns the configured image store.
func OpenBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "local":
		logger.Info("using local blob store", "path", cfg.BlobLocalPath)
		return local.NewLocalBlobStore(cfg.BlobLocalPath, cfg.BlobPublicURL)
	case "s3":
		logger.Info("using s3 blob store", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
		return s3.New(ctx, s3.Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
			PublicURL:       cfg.BlobPublicURL,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// NewLabelReader returns nil when label reading is off.
func NewLabelReader(cfg *config.Config, logger *slog.Logger) labelreader.Reader {
	switch cfg.LabelReader {
	case "claude":
		logger.Info("using Claude label reader", "model", cfg.ClaudeModel)
		return claude.NewReader(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "ollama":
		logger.Info("using Ollama label reader", "model", cfg.OllamaModel)
		return ollama.NewReader(cfg.OllamaHost, cfg.OllamaModel)
	default:
		return nil
	}
}
