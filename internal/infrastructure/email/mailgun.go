package email

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunSender delivers mail through the Mailgun messages API.
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgunSender(domain, apiKey, from string) *MailgunSender {
	return &MailgunSender{mg: mailgun.NewMailgun(domain, apiKey), from: from}
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, bodyHTML string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := s.mg.NewMessage(s.from, subject, "", to)
	message.SetHtml(bodyHTML)

	if _, _, err := s.mg.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}
