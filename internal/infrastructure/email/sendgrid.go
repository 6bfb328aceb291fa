package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendTimeout = 30 * time.Second

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   string
}

func NewSendGridSender(apiKey, from string) *SendGridSender {
	return &SendGridSender{client: sendgrid.NewSendClient(apiKey), from: from}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, bodyHTML string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	message := mail.NewSingleEmail(mail.NewEmail("", s.from), subject, mail.NewEmail("", to), "", bodyHTML)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}
