package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"icdlookup/internal"
	"icdlookup/internal/storage"
)

// FetchService pulls messages from a mailbox and keeps each raw message on disk under
// its sha256 name, with a "fetched" row waiting for lookup processing.
type FetchService struct {
	db         *storage.DB
	connector  MailConnector
	rawMailDir string
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
	Empty   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{db: db, connector: connector, rawMailDir: rawMailDir}
}

// FetchAndStore saves new messages as fetched. Messages already known by provider and
// Message-ID keep their processing status. Messages without a body are not stored, and
// messages without a Message-ID are keyed by their content hash.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if len(msg.Raw) == 0 {
			result.Empty++
			continue
		}
		hash := contentHash(msg.Raw)
		if strings.TrimSpace(msg.MessageID) == "" {
			msg.MessageID = "sha256:" + hash
		}

		existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Known++
			continue
		}
		if _, err := s.store(msg, hash); err != nil {
			return result, err
		}
		result.Stored++
	}

	return result, nil
}

func (s *FetchService) store(msg internal.FetchedMailMessage, hash string) (internal.EmailRow, error) {
	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.EmailRow{}, err
	}
	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.EmailRow{}, err
		}
	}
	return s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, "fetched")
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
