package ports

import "context"

// EmailSender dispatches a single message. Implementations must not retry.
type EmailSender interface {
	Send(ctx context.Context, to, subject, bodyHTML string) error
}
