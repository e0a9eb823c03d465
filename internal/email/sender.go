package email

import "context"

// EmailSender delivers one operator notification to every recipient.
type EmailSender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}
