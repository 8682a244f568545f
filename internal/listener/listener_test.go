package listener

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/jhillyerd/enmime"

	"icdlookup/internal"
	"icdlookup/internal/config"
	"icdlookup/internal/connectors"
	"icdlookup/internal/storage"
)

type stubConnector struct {
	messages []internal.FetchedMailMessage
}

func (s stubConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return s.messages, nil
}

func rawEmail(t *testing.T) []byte {
	t.Helper()
	part, err := enmime.Builder().
		From("Front Desk", "desk@clinic.example.com").
		To("Coding", "coding@example.com").
		Subject("ICD code lookup").
		Text([]byte("- E11.9\n- asthma\n")).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	buf := &bytes.Buffer{}
	if err := part.Encode(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testService(t *testing.T) (*Service, *storage.DB, config.Config) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawMailDir:               filepath.Join(tmp, "raw"),
		OutputDir:                filepath.Join(tmp, "out"),
		MailListenerProvider:     "imap",
		MailListenerLabel:        "INBOX",
		MailListenerFetchMax:     10,
		MailListenerProcessBatch: 10,
		MailListenerAutoExport:   true,
		MailListenerLockPath:     filepath.Join(tmp, "listener.lock"),
	}
	table := internal.CanonicalTable{Records: []internal.CanonicalRecord{
		{Code: "E119", ShortDescription: "Type 2 diabetes mellitus without complications", Category: "E11", Chapter: "Endocrine & Metabolic"},
		{Code: "J45909", ShortDescription: "Unspecified asthma, uncomplicated", Category: "J45", Chapter: "Respiratory System"},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(db, cfg, func() (internal.CanonicalTable, error) { return table, nil }, logger)
	svc.newConnector = func(context.Context, config.Config, string) (connectors.MailConnector, error) {
		return stubConnector{messages: []internal.FetchedMailMessage{
			{Provider: "imap", MessageID: "<m1@clinic.example.com>", Subject: "ICD code lookup", ReceivedAt: "2026-01-05T08:30:00Z", Raw: rawEmail(t)},
		}}, nil
	}
	return svc, db, cfg
}

func TestRunCycleExportsWorkbook(t *testing.T) {
	svc, db, cfg := testService(t)
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	email, err := db.MustEmailByProviderMessageID("imap", "<m1@clinic.example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if email.Status != "exported" {
		t.Fatalf("status=%s", email.Status)
	}
	out := filepath.Join(cfg.OutputDir, "listener", "1__m1@clinic.example.com_.xlsx")
	if _, err := os.Stat(out); err != nil {
		t.Fatal(err)
	}

	// A second cycle sees the same message again and leaves it alone.
	if err := svc.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	again, _ := db.GetEmailByID(email.ID)
	if again.Status != "exported" {
		t.Fatalf("status=%s", again.Status)
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	svc, _, cfg := testService(t)
	holder := flock.New(cfg.MailListenerLockPath)
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("locked=%v err=%v", locked, err)
	}
	defer func() { _ = holder.Unlock() }()

	err = svc.Run(context.Background())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err=%v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	svc, _, _ := testService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestSanitizeMessageID(t *testing.T) {
	if got := SanitizeMessageID("<a/b:c@x>"); got != "_a_b_c@x_" {
		t.Fatalf("got=%q", got)
	}
}
