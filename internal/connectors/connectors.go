package connectors

import (
	"context"

	"icdlookup/internal"
)

// MailConnector fetches raw messages from one mailbox provider.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}
