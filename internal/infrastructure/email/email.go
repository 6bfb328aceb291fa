// Package email provides the outbound email channel used by password
// recovery. Senders never retry a failed dispatch.
package email

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/ports"
)

const (
	ProviderLog      = "log"
	ProviderSendGrid = "sendgrid"
	ProviderMailgun  = "mailgun"
)

// Config selects and configures an email provider.
type Config struct {
	Provider      string
	From          string
	SendGridKey   string
	MailgunDomain string
	MailgunKey    string
}

var ErrInvalidConfig = errors.New("invalid email configuration")

// NewSender returns the sender for cfg.Provider.
func NewSender(cfg Config, log zerolog.Logger) (ports.EmailSender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderLog:
		return NewLogSender(log), nil
	case ProviderSendGrid:
		if cfg.SendGridKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("%w: sendgrid requires api key and from address", ErrInvalidConfig)
		}
		return NewSendGridSender(cfg.SendGridKey, cfg.From), nil
	case ProviderMailgun:
		if cfg.MailgunDomain == "" || cfg.MailgunKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("%w: mailgun requires domain, api key and from address", ErrInvalidConfig)
		}
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunKey, cfg.From), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
