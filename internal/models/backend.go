package models

import "context"

// MailBackend is what the IMAP proxy needs from the mail API. Every call
// carries the token obtained from Authenticate.
type MailBackend interface {
	Authenticate(ctx context.Context, email, password string) (token string, err error)
	ListMessages(ctx context.Context, token, mailbox string) ([]EmailMessage, error)
	GetRawMessage(ctx context.Context, token, mailbox, id string) (string, error)
	SetFlags(ctx context.Context, token, id string, update FlagUpdate) (MessageFlags, error)
}
