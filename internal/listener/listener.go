package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"icdlookup/internal/config"
	"icdlookup/internal/connectors"
	"icdlookup/internal/pipeline"
	"icdlookup/internal/storage"
)

var ErrAlreadyRunning = errors.New("another listener holds the lock")

type Service struct {
	db     *storage.DB
	cfg    config.Config
	tables pipeline.TableFunc
	logger *slog.Logger

	newConnector func(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, tables pipeline.TableFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cfg: cfg, tables: tables, logger: logger, newConnector: connectors.NewMailConnector}
}

// Run polls the mailbox until ctx is done. Only one listener per lock file may run.
func (s *Service) Run(ctx context.Context) error {
	lockPath := s.cfg.MailListenerLockPath
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, lockPath)
	}
	defer func() { _ = lock.Unlock() }()

	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("listener started", "provider", s.cfg.MailListenerProvider, "label", s.cfg.MailListenerLabel, "interval", interval)

	for {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.Error("listener cycle failed", "err", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches, processes and exports once.
func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.newConnector(ctx, s.cfg, provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processor := pipeline.NewProcessingService(s.db, s.tables)
	processedEmails, processedLines, err := processor.ProcessPending(s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	exported := 0
	if s.cfg.MailListenerAutoExport {
		exported, err = s.exportProcessed(provider)
		if err != nil {
			return err
		}
	}

	s.logger.Info("listener cycle done",
		"provider", provider,
		"fetched", fetchResult.Fetched,
		"stored", fetchResult.Stored,
		"empty", fetchResult.Empty,
		"processed", processedEmails,
		"lines", processedLines,
		"exported", exported,
	)
	return nil
}

func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus("processed", 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		rows, err := s.db.GetExportRows(email.ID)
		if err != nil {
			return exported, err
		}
		if len(rows) == 0 {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, SanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportRowsToXLSX(rows, outputPath); err != nil {
			return exported, err
		}
		_ = s.db.UpdateEmailStatus(email.ID, "exported")
		exported++
	}
	return exported, nil
}

func SanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
