package connectors

import (
	"context"
	"fmt"
	"strings"

	"icdlookup/internal/config"
	gmailconnector "icdlookup/internal/connectors/gmail"
	imapconnector "icdlookup/internal/connectors/imap"
)

func NewMailConnector(ctx context.Context, cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
