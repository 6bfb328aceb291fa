package email

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewSender(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default is log", cfg: Config{}, want: "*email.LogSender"},
		{name: "sendgrid", cfg: Config{Provider: "SendGrid", SendGridKey: "k", From: "a@b.c"}, want: "*email.SendGridSender"},
		{name: "sendgrid missing key", cfg: Config{Provider: ProviderSendGrid, From: "a@b.c"}, wantErr: true},
		{name: "mailgun", cfg: Config{Provider: ProviderMailgun, MailgunDomain: "mg.example.com", MailgunKey: "k", From: "a@b.c"}, want: "*email.MailgunSender"},
		{name: "mailgun missing domain", cfg: Config{Provider: ProviderMailgun, MailgunKey: "k", From: "a@b.c"}, wantErr: true},
		{name: "unknown", cfg: Config{Provider: "pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.cfg, zerolog.Nop())
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got string
			switch sender.(type) {
			case *LogSender:
				got = "*email.LogSender"
			case *SendGridSender:
				got = "*email.SendGridSender"
			case *MailgunSender:
				got = "*email.MailgunSender"
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %T", tt.want, sender)
			}
		})
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(zerolog.New(&buf))

	if err := sender.Send(context.Background(), "ana@example.com", "Your code", "<p>123456</p>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "ana@example.com") || !strings.Contains(buf.String(), "123456") {
		t.Fatalf("expected message in log output, got %s", buf.String())
	}
}
