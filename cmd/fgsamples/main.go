package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbonduro/fgsamples/internal/backend"
	"github.com/vbonduro/fgsamples/internal/config"
	"github.com/vbonduro/fgsamples/internal/logging"
	"github.com/vbonduro/fgsamples/internal/metrics"
	"github.com/vbonduro/fgsamples/internal/service"
	"github.com/vbonduro/fgsamples/internal/session"
	"github.com/vbonduro/fgsamples/internal/store"
	"github.com/vbonduro/fgsamples/internal/web"
	"github.com/vbonduro/fgsamples/internal/web/templates"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := backend.OpenDocstore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open document store", "error", err)
		return
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logger.Error("failed to close document store", "error", err)
		}
	}()

	blobs, err := backend.OpenBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize blob store", "error", err)
		return
	}

	rec := metrics.New()

	samples := service.NewSampleService(store.NewSampleStore(docs), blobs, rec, service.Options{
		Location:                cfg.Location,
		MaxImageDimension:       cfg.ImageMaxDimension,
		PendingTTL:              cfg.PendingTTL,
		CleanupAbandonedUploads: cfg.CleanupAbandonedUploads,
	}, logger)
	defer samples.Close()

	prefixes := make([]service.SitePrefix, 0, len(cfg.SitePrefixes))
	for _, p := range cfg.SitePrefixes {
		prefixes = append(prefixes, service.SitePrefix{Prefix: p.Prefix, Site: p.Site})
	}
	auth := service.NewAuthService(store.NewUserStore(docs), prefixes, cfg.AdminPasswordHash, logger)
	defer auth.Close()

	if cfg.AdminPasswordHash == "" {
		logger.Warn("ADMIN_PASSWORD_HASH is not set; registration is disabled")
	}

	server := web.NewServer(web.Deps{
		Samples:  samples,
		Auth:     auth,
		Sessions: session.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.SessionSecure),
		Blobs:    blobs,
		Labels:   backend.NewLabelReader(cfg, logger),
		Metrics:  rec.Handler(),
	}, templates.FS, logger)

	if err := server.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
