package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/certgen-backend/internal/archive"
	"github.com/yungbote/certgen-backend/internal/assets"
	"github.com/yungbote/certgen-backend/internal/batch"
	"github.com/yungbote/certgen-backend/internal/certs"
	"github.com/yungbote/certgen-backend/internal/config"
	httpServer "github.com/yungbote/certgen-backend/internal/http"
	"github.com/yungbote/certgen-backend/internal/http/handlers"
	"github.com/yungbote/certgen-backend/internal/pkg/logger"
	"github.com/yungbote/certgen-backend/internal/site"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Asset store
	limits := assets.Limits{
		MaxTemplateBytes: cfg.MaxTemplateBytes,
		MaxTableBytes:    cfg.MaxTableBytes,
	}
	var store assets.Store
	if cfg.ObjectStore.Enabled {
		store, err = assets.NewMinioStore(ctx, log, cfg.ObjectStore, limits)
		if err != nil {
			log.Error("Could not init MinIO asset store", "error", err)
			os.Exit(1)
		}
	} else {
		store = assets.NewMemoryStore(ctx, log, limits, cfg.AssetTTL)
	}

	// Compositor
	layout := config.CurrentLayout(log)
	compositor, err := certs.NewCompositor(log, layout, cfg.OutputFormat, cfg.FontPath)
	if err != nil {
		log.Error("Could not init Compositor", "error", err)
		os.Exit(1)
	}

	// Pipeline
	pages := site.NewGenerator()
	orchestrator := batch.NewOrchestrator(ctx, log, compositor, pages, batch.Options{
		Workers:    cfg.Workers,
		RowTimeout: cfg.RowTimeout,
		EmptyNames: cfg.EmptyNames,
		BatchTTL:   cfg.BatchTTL,
	})
	packager := archive.NewPackager(log, store, pages)

	// HTTP
	server := httpServer.NewServer(httpServer.RouterConfig{
		Log:             log,
		HealthHandler:   handlers.NewHealthHandler(),
		TemplateHandler: handlers.NewTemplateHandler(log, store),
		TableHandler:    handlers.NewTableHandler(log, store, cfg.PreviewRows),
		BatchHandler:    handlers.NewBatchHandler(log, store, orchestrator, packager, cfg.PreviewRows),
	})

	log.Info("Starting server", "addr", cfg.Addr, "workers", cfg.Workers)
	if err := server.Run(cfg.Addr); err != nil {
		log.Fatal("Server stopped", "error", err)
	}
}
