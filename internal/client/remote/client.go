// Package remote is the HTTP client for the stallauth API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stallpos/auth-service/internal/api"
	"github.com/stallpos/auth-service/internal/core/domain"
)

// ErrUnreachable wraps transport failures and gateway errors, the cases in
// which a caller may fall back to offline operation.
var ErrUnreachable = errors.New("remote: server unreachable")

const (
	defaultTimeout = 10 * time.Second
	// tripAfter consecutive unreachable results open the breaker.
	tripAfter   = 3
	openTimeout = 30 * time.Second
)

// Session is the result of a login or password change.
type Session struct {
	Token           string       `json:"token"`
	PasswordVersion string       `json:"password_version"`
	ExpiresAt       time.Time    `json:"expires_at"`
	User            *domain.User `json:"user"`
}

// Reset is the result of a completed recovery.
type Reset struct {
	PasswordVersion string       `json:"password_version"`
	User            *domain.User `json:"user"`
}

// RecoveryUpdate carries the recovery fields to change. Nil leaves a field as is.
type RecoveryUpdate struct {
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
	SecretWord *string `json:"secret_word,omitempty"`
}

type errorEnvelope struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	Field             string `json:"field"`
	RemainingAttempts *int   `json:"remaining_attempts"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	PasswordChanged   bool   `json:"password_changed"`
}

type userEnvelope struct {
	User *domain.User `json:"user"`
}

// Client talks JSON to the /v1 API. Calls go through a circuit breaker that
// only counts unreachable results; while it is open every call fails with
// ErrUnreachable without touching the network.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// New returns a Client for baseURL. A non-positive timeout uses 10s.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "stallauth-api",
			MaxRequests: 1,
			Timeout:     openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
			IsSuccessful: func(err error) bool {
				return !errors.Is(err, ErrUnreachable)
			},
		}),
	}
}

func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var out Session
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/logout", token, nil, nil)
}

func (c *Client) Me(ctx context.Context, token string) (*domain.User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (*Session, error) {
	var out Session
	body := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/password", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateRecovery(ctx context.Context, token string, in RecoveryUpdate) (*domain.User, error) {
	var out userEnvelope
	if err := c.do(ctx, http.MethodPut, "/v1/auth/recovery", token, in, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) RequestCode(ctx context.Context, username, email string) error {
	body := map[string]string{"username": username, "email": email}
	return c.do(ctx, http.MethodPost, "/v1/recovery/code", "", body, nil)
}

// VerifyCode exchanges a verification code for a reset token.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (string, error) {
	var out struct {
		ResetToken string `json:"reset_token"`
	}
	body := map[string]string{"email": email, "code": code}
	if err := c.do(ctx, http.MethodPost, "/v1/recovery/code/verify", "", body, &out); err != nil {
		return "", err
	}
	return out.ResetToken, nil
}

func (c *Client) ResetWithToken(ctx context.Context, resetToken, newPassword string) (*Reset, error) {
	body := map[string]string{"reset_token": resetToken, "new_password": newPassword}
	return c.reset(ctx, "/v1/recovery/reset", body)
}

func (c *Client) ResetByContact(ctx context.Context, username, method, contact, newPassword string) (*Reset, error) {
	body := map[string]string{"username": username, "method": method, "contact": contact, "new_password": newPassword}
	return c.reset(ctx, "/v1/recovery/contact", body)
}

func (c *Client) ResetWithSecretWord(ctx context.Context, username, secretWord, newPassword string) (*Reset, error) {
	body := map[string]string{"username": username, "secret_word": secretWord, "new_password": newPassword}
	return c.reset(ctx, "/v1/recovery/secret-word", body)
}

// Health calls the liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) reset(ctx context.Context, path string, body any) (*Reset, error) {
	var out Reset
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, token, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, in, out any) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("remote: encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("remote: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("remote: decoding response: %w", err)
		}
		return nil
	}
	return decodeError(resp)
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var env errorEnvelope
	decoded := json.Unmarshal(data, &env) == nil && env.Code != ""

	kind, known := api.KindForCode(env.Code)
	if !known {
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %s", ErrUnreachable, resp.Status)
		}
		if decoded {
			return fmt.Errorf("remote: %s (%s)", env.Error, env.Code)
		}
		return fmt.Errorf("remote: unexpected response %s", resp.Status)
	}

	ae := &domain.AuthError{
		Kind:            kind,
		Message:         env.Error,
		Field:           env.Field,
		RetryAfter:      time.Duration(env.RetryAfterSeconds) * time.Second,
		PasswordChanged: env.PasswordChanged,
	}
	if env.RemainingAttempts != nil {
		ae.Remaining = *env.RemainingAttempts
	}
	return ae
}
