package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
)

type sentMail struct {
	to, subject, body string
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *stubMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (f *fixture) latestCode(t *testing.T, email string) *domain.VerificationCode {
	t.Helper()
	code, err := f.codes.FindLatestUnverified(context.Background(), email, domain.PurposePasswordReset)
	if err != nil {
		t.Fatalf("latest code: %v", err)
	}
	return code
}

func wrongCode(code string) string {
	if code == "123456" {
		return "654321"
	}
	return "123456"
}

func registerWithEmail(t *testing.T, f *fixture) *domain.User {
	return f.register(t, ports.RegisterInput{
		Username: "alice",
		Password: "s3cr!t!",
		Email:    "alice@example.com",
		Phone:    "+52 (55) 1234-5678",
	})
}

func TestRecoveryService_RequestCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)

	if err := f.recovery.RequestCode(ctx, "ghost", "alice@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := f.recovery.RequestCode(ctx, "alice", "other@example.com"); !errors.Is(err, domain.ErrEmailMismatch) {
		t.Fatalf("expected ErrEmailMismatch, got %v", err)
	}

	if err := f.recovery.RequestCode(ctx, "Alice", " ALICE@example.com"); err != nil {
		t.Fatalf("request code: %v", err)
	}
	code := f.latestCode(t, "alice@example.com")
	if len(code.Code) != 6 || code.Code < "100000" || code.Code > "999999" {
		t.Fatalf("unexpected code %q", code.Code)
	}
	if !code.ExpiresAt.Equal(f.clock.Add(5*time.Minute)) || code.Attempts != 0 || code.Verified {
		t.Fatalf("unexpected code record %+v", code)
	}
	if len(f.mailer.sent) != 1 || f.mailer.sent[0].to != "alice@example.com" {
		t.Fatalf("expected one email to alice, got %+v", f.mailer.sent)
	}
	if !strings.Contains(f.mailer.sent[0].body, code.Code) {
		t.Fatalf("email body does not carry the code")
	}
}

func TestRecoveryService_RequestCode_RateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)

	for i := 0; i < 3; i++ {
		if err := f.recovery.RequestCode(ctx, "alice", "alice@example.com"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		f.advance(time.Minute)
	}

	err := f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	ae, ok := domain.AsAuthError(err)
	if !ok || !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ae.RetryAfter != 57*time.Minute {
		t.Fatalf("expected retry after 57m, got %v", ae.RetryAfter)
	}

	f.advance(58 * time.Minute)
	if err := f.recovery.RequestCode(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("request after 61 minutes should succeed: %v", err)
	}
}

func TestRecoveryService_RequestCode_EmailFailure(t *testing.T) {
	f := newFixture(t)
	registerWithEmail(t, f)
	f.mailer.err = errors.New("smtp down")

	err := f.recovery.RequestCode(context.Background(), "alice", "alice@example.com")
	if !errors.Is(err, domain.ErrEmailUnavailable) {
		t.Fatalf("expected ErrEmailUnavailable, got %v", err)
	}
	// The code stays persisted and counts towards the rate limit.
	f.latestCode(t, "alice@example.com")
}

func TestRecoveryService_VerifyCode_AttemptLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)
	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	code := f.latestCode(t, "alice@example.com").Code

	for i := 1; i <= MaxCodeAttempts; i++ {
		_, err := f.recovery.VerifyCode(ctx, "alice@example.com", wrongCode(code))
		ae, ok := domain.AsAuthError(err)
		if !ok || !errors.Is(err, domain.ErrInvalidCode) {
			t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i, err)
		}
		if ae.Remaining != MaxCodeAttempts-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, MaxCodeAttempts-i, ae.Remaining)
		}
	}

	if _, err := f.recovery.VerifyCode(ctx, "alice@example.com", code); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("sixth attempt must fail with ErrTooManyAttempts, got %v", err)
	}
}

// lookupBarrier holds every FindLatestUnverified caller until all of them
// have read the code, so they all act on the same snapshot.
type lookupBarrier struct {
	ports.VerificationRepository
	readers sync.WaitGroup
}

func (b *lookupBarrier) FindLatestUnverified(ctx context.Context, email, purpose string) (*domain.VerificationCode, error) {
	code, err := b.VerificationRepository.FindLatestUnverified(ctx, email, purpose)
	b.readers.Done()
	b.readers.Wait()
	return code, err
}

func racingRecovery(f *fixture, callers int) *RecoveryService {
	barrier := &lookupBarrier{VerificationRepository: f.codes}
	barrier.readers.Add(callers)
	svc := NewRecoveryService(f.users, barrier, f.mailer, credential.NewHasher(bcrypt.MinCost), f.tokens, 5*time.Minute, zerolog.Nop())
	svc.now = f.now
	return svc
}

func TestRecoveryService_VerifyCode_ConcurrentGuessesHonourCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)
	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	guess := wrongCode(f.latestCode(t, "alice@example.com").Code)

	const callers = 20
	svc := racingRecovery(f, callers)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		invalid  int
		exceeded int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyCode(ctx, "alice@example.com", guess)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrInvalidCode):
				invalid++
			case errors.Is(err, domain.ErrTooManyAttempts):
				exceeded++
			default:
				t.Errorf("unexpected result: %v", err)
			}
		}()
	}
	wg.Wait()

	if invalid != MaxCodeAttempts || exceeded != callers-MaxCodeAttempts {
		t.Fatalf("expected %d evaluated and %d refused, got %d and %d", MaxCodeAttempts, callers-MaxCodeAttempts, invalid, exceeded)
	}
	if got := f.latestCode(t, "alice@example.com").Attempts; got != MaxCodeAttempts {
		t.Fatalf("expected stored attempts %d, got %d", MaxCodeAttempts, got)
	}
}

func TestRecoveryService_VerifyCode_ConcurrentCorrectGuessesIssueOneToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)
	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	code := f.latestCode(t, "alice@example.com").Code

	const callers = 4
	svc := racingRecovery(f, callers)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := svc.VerifyCode(ctx, "alice@example.com", code)
			if err != nil && !errors.Is(err, domain.ErrNoCodeFound) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if token != "" {
				mu.Lock()
				tokens++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if tokens != 1 {
		t.Fatalf("expected exactly one reset token, got %d", tokens)
	}
}

func TestRecoveryService_VerifyCode_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)

	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	first := f.latestCode(t, "alice@example.com")
	f.clock = first.ExpiresAt.Add(-time.Second)
	if _, err := f.recovery.VerifyCode(ctx, "alice@example.com", first.Code); err != nil {
		t.Fatalf("code should be valid one second before expiry: %v", err)
	}

	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	second := f.latestCode(t, "alice@example.com")
	f.clock = second.ExpiresAt.Add(time.Second)
	if _, err := f.recovery.VerifyCode(ctx, "alice@example.com", second.Code); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired one second after expiry, got %v", err)
	}
}

func TestRecoveryService_VerifyCode_NoCode(t *testing.T) {
	f := newFixture(t)
	if _, err := f.recovery.VerifyCode(context.Background(), "nobody@example.com", "123456"); !errors.Is(err, domain.ErrNoCodeFound) {
		t.Fatalf("expected ErrNoCodeFound, got %v", err)
	}
}

func TestRecoveryService_ResetWithToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)
	session, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	code := f.latestCode(t, "alice@example.com").Code
	resetToken, err := f.recovery.VerifyCode(ctx, "alice@example.com", code)
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if _, err := f.recovery.VerifyCode(ctx, "alice@example.com", code); !errors.Is(err, domain.ErrNoCodeFound) {
		t.Fatalf("verified code must not be reusable, got %v", err)
	}

	if _, err := f.recovery.ResetPasswordWithToken(ctx, session.Token, "n3w!pass!"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("session token must not reset passwords, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, resetToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("reset token must not authenticate, got %v", err)
	}

	res, err := f.recovery.ResetPasswordWithToken(ctx, resetToken, "n3w!pass!")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res.PasswordVersion == session.PasswordVersion {
		t.Fatalf("password version should change")
	}
	if _, err := f.recovery.ResetPasswordWithToken(ctx, resetToken, "an0ther!!"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("reset token must be single use, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, session.Token); !errors.Is(err, domain.ErrPasswordChanged) {
		t.Fatalf("existing session should be invalidated, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "alice", "n3w!pass!"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRecoveryService_ResetWithToken_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)
	_ = f.recovery.RequestCode(ctx, "alice", "alice@example.com")
	resetToken, _ := f.recovery.VerifyCode(ctx, "alice@example.com", f.latestCode(t, "alice@example.com").Code)

	f.advance(11 * time.Minute)
	if _, err := f.recovery.ResetPasswordWithToken(ctx, resetToken, "n3w!pass!"); !errors.Is(err, domain.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid after 10 minutes, got %v", err)
	}
}

func TestRecoveryService_ResetByContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	registerWithEmail(t, f)

	tests := []struct {
		name     string
		method   string
		contact  string
		password string
		wantErr  error
	}{
		{"phone mismatch", ports.ContactPhone, "5550000000", "n3w!pass!", domain.ErrContactMismatch},
		{"email mismatch", ports.ContactEmail, "bob@example.com", "n3w!pass!", domain.ErrContactMismatch},
		{"unknown method", "sms", "5512345678", "n3w!pass!", domain.ErrValidation},
		{"weak password", ports.ContactEmail, "alice@example.com", "abc123", domain.ErrValidation},
		{"phone match ignores formatting", ports.ContactPhone, "52-55-1234-5678", "n3w!pass!", nil},
		{"email match ignores case", ports.ContactEmail, "ALICE@EXAMPLE.COM", "an0ther!!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.recovery.ResetPasswordByContact(ctx, "alice", tt.method, tt.contact, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("reset: %v", err)
			}
			if res.PasswordVersion == "" || res.User.Username != "alice" {
				t.Fatalf("unexpected result %+v", res)
			}
			if _, err := f.auth.Login(ctx, "alice", tt.password); err != nil {
				t.Fatalf("login with new password: %v", err)
			}
		})
	}

	if _, err := f.recovery.ResetPasswordByContact(ctx, "ghost", ports.ContactEmail, "x@y.z", "n3w!pass!"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRecoveryService_RecoverWithSecretWord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := registerWithEmail(t, f)

	if _, err := f.recovery.RecoverWithSecretWord(ctx, "alice", "bluejay7", "n3w!pass!"); !errors.Is(err, domain.ErrSecretWordNotSet) {
		t.Fatalf("expected ErrSecretWordNotSet, got %v", err)
	}

	word := "bluejay7"
	if _, err := f.auth.UpdateRecovery(ctx, u, ports.RecoveryInput{SecretWord: &word}); err != nil {
		t.Fatalf("update recovery: %v", err)
	}

	if _, err := f.recovery.RecoverWithSecretWord(ctx, "alice", "bluejay8", "n3w!pass!"); !errors.Is(err, domain.ErrChallengeFailed) {
		t.Fatalf("expected ErrChallengeFailed, got %v", err)
	}
	if _, err := f.recovery.RecoverWithSecretWord(ctx, "alice", "BLUEJAY7", "n3w!pass!"); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if _, err := f.auth.Login(ctx, "alice", "n3w!pass!"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
