package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"icdlookup/internal/config"
	"icdlookup/internal/dataset"
	"icdlookup/internal/listener"
	"icdlookup/internal/schema"
	"icdlookup/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	keywords, err := schema.LoadRoleKeywords(cfg.RoleKeywordsFile)
	must(err)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cache := dataset.NewCache(dataset.Options{Keywords: keywords, ExcludedSheet: cfg.DatasetExcludedSheet})
	cache.OnLoad = func(info dataset.LoadInfo) {
		logger.Info("dataset loaded", "path", info.Path, "records", info.Records, "excluded", info.Excluded, "took", info.Duration)
		_ = db.InsertDatasetLoad(storage.DatasetLoad{
			Path:       info.Path,
			ModTime:    info.ModTime,
			Records:    info.Records,
			Excluded:   info.Excluded,
			Columns:    info.Columns,
			DurationMs: info.Duration.Milliseconds(),
		})
	}

	svc := listener.NewService(db, cfg, cache.Tables(cfg.DatasetPath), logger)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
