package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/ports"
	"github.com/stallpos/auth-service/internal/infrastructure/db/memory"
)

type stubActivity struct {
	mu      sync.Mutex
	touched []string
}

func (a *stubActivity) Record(fp string, _ time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touched = append(a.touched, fp)
}

func (a *stubActivity) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.touched)
}

type fixture struct {
	users    *memory.UserRepository
	sessions *memory.SessionRepository
	codes    *memory.VerificationRepository
	activity *stubActivity
	mailer   *stubMailer
	tokens   *TokenManager
	auth     *AuthService
	recovery *RecoveryService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:    memory.NewUserRepository(),
		sessions: memory.NewSessionRepository(),
		codes:    memory.NewVerificationRepository(),
		activity: &stubActivity{},
		mailer:   &stubMailer{},
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	hasher := credential.NewHasher(bcrypt.MinCost)
	f.tokens = NewTokenManager("test-secret", "stallauth", time.Hour, 10*time.Minute)
	f.tokens.now = f.now
	f.auth = NewAuthService(f.users, f.sessions, f.activity, hasher, f.tokens, zerolog.Nop())
	f.auth.now = f.now
	f.recovery = NewRecoveryService(f.users, f.codes, f.mailer, hasher, f.tokens, 5*time.Minute, zerolog.Nop())
	f.recovery.now = f.now
	return f
}

func (f *fixture) now() time.Time { return f.clock }

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) register(t *testing.T, in ports.RegisterInput) *domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("register %s: %v", in.Username, err)
	}
	return u
}

func TestAuthService_Register(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.register(t, ports.RegisterInput{Username: "Carol", Password: "pa$$word", Email: " Carol@Example.com "})
	if user.Role != domain.RoleUser {
		t.Fatalf("expected default role user, got %s", user.Role)
	}
	if user.Email != "carol@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "pa$$word" || user.PasswordVersion == "" {
		t.Fatalf("expected hashed password and version, got %+v", user)
	}
	if user.PasswordVersion != credential.PasswordVersionFingerprint(user.PasswordHash) {
		t.Fatalf("password version does not match stored hash")
	}

	_, err := f.auth.Register(ctx, ports.RegisterInput{Username: "carol", Password: "pa$$word"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists for case-insensitive duplicate, got %v", err)
	}

	_, err = f.auth.Register(ctx, ports.RegisterInput{Username: "dave", Password: "abc123"})
	if ae, ok := domain.AsAuthError(err); !ok || !errors.Is(err, domain.ErrValidation) || ae.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}

	_, err = f.auth.Register(ctx, ports.RegisterInput{Username: "eve", Password: "pa$$word", Role: "root"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected role validation error, got %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})

	res, err := f.auth.Login(ctx, "ALICE", "s3cr!t!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.PasswordVersion == "" || res.User.Username != "alice" {
		t.Fatalf("unexpected login result %+v", res)
	}
	if !res.ExpiresAt.Equal(f.clock.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if f.sessions.Len() != 1 {
		t.Fatalf("expected one persisted session, got %d", f.sessions.Len())
	}

	if _, err := f.auth.Login(ctx, "alice", "wrong!!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "nobody", "s3cr!t!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthService_Login_Inactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, ports.RegisterInput{Username: "bob", Password: "s3cr!t!"})

	inactive := domain.StatusInactive
	if _, err := f.users.Update(ctx, u.ID, domain.UserUpdate{Status: &inactive}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := f.auth.Login(ctx, "bob", "wrong!!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("inactive status must not leak before password check, got %v", err)
	}
	if _, err := f.auth.Login(ctx, "bob", "s3cr!t!"); !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})
	res, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	user, err := f.auth.Authenticate(ctx, res.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user %+v", user)
	}
	if f.activity.count() != 1 {
		t.Fatalf("expected one activity touch, got %d", f.activity.count())
	}

	if _, err := f.auth.Authenticate(ctx, "not-a-token"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_Authenticate_MissingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})
	res, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	_ = f.sessions.Delete(ctx, credential.TokenFingerprint(res.Token))

	if _, err := f.auth.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestAuthService_Authenticate_ExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})
	res, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	// The signed token stays valid while the session row has already lapsed.
	fp := credential.TokenFingerprint(res.Token)
	s, _ := f.sessions.FindByToken(ctx, fp, res.User.ID)
	s.ExpiresAt = f.clock.Add(-time.Second)
	_ = f.sessions.Create(ctx, s)

	if _, err := f.auth.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if f.sessions.Len() != 0 {
		t.Fatalf("expired session should be deleted")
	}
}

func TestAuthService_ChangePasswordInvalidatesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})

	tablet, _ := f.auth.Login(ctx, "alice", "s3cr!t!")
	phone, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	changed, err := f.auth.ChangePassword(ctx, phone.Token, "s3cr!t!", "n3w!pass!")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if changed.PasswordVersion == tablet.PasswordVersion {
		t.Fatalf("password version should change")
	}

	for name, token := range map[string]string{"tablet": tablet.Token, "phone": phone.Token} {
		_, err := f.auth.Authenticate(ctx, token)
		ae, ok := domain.AsAuthError(err)
		if !ok || !errors.Is(err, domain.ErrPasswordChanged) || !ae.PasswordChanged {
			t.Fatalf("%s: expected password changed error, got %v", name, err)
		}
	}

	if _, err := f.auth.Authenticate(ctx, changed.Token); err != nil {
		t.Fatalf("new token should authenticate: %v", err)
	}
	if _, err := f.auth.Login(ctx, "alice", "s3cr!t!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password should be rejected, got %v", err)
	}
}

func TestAuthService_ChangePassword_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})
	res, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	if _, err := f.auth.ChangePassword(ctx, res.Token, "wrong!!", "n3w!pass!"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.auth.ChangePassword(ctx, res.Token, "s3cr!t!", "ab!1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, res.Token); err != nil {
		t.Fatalf("rejected change must not invalidate session: %v", err)
	}
}

func TestAuthService_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})
	res, _ := f.auth.Login(ctx, "alice", "s3cr!t!")

	if err := f.auth.Logout(ctx, res.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := f.auth.Logout(ctx, res.Token); err != nil {
		t.Fatalf("second logout should be a no-op: %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, res.Token); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid after logout, got %v", err)
	}
}

func TestAuthService_UpdateRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, ports.RegisterInput{Username: "alice", Password: "s3cr!t!"})

	word := " BlueJay7 "
	email := "Alice@Example.com"
	updated, err := f.auth.UpdateRecovery(ctx, u, ports.RecoveryInput{Email: &email, SecretWord: &word})
	if err != nil {
		t.Fatalf("update recovery: %v", err)
	}
	if updated.Email != "alice@example.com" || updated.SecretWordLength != 8 || !updated.HasSecretWord() {
		t.Fatalf("unexpected user %+v", updated)
	}
	if updated.SecretWordHash == "bluejay7" {
		t.Fatalf("secret word stored in plaintext")
	}
	if !updated.RecoveryUpdatedAt.Equal(f.clock) {
		t.Fatalf("recovery timestamp not set")
	}

	short := "abc"
	if _, err := f.auth.UpdateRecovery(ctx, u, ports.RecoveryInput{SecretWord: &short}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAuthService_EnsureBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, created, err := f.auth.EnsureBootstrapAdmin(ctx, "admin", "adm!n!23")
	if err != nil || !created {
		t.Fatalf("expected admin to be created, got created=%v err=%v", created, err)
	}
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	again, created, err := f.auth.EnsureBootstrapAdmin(ctx, "ADMIN", "other!!pw")
	if err != nil || created {
		t.Fatalf("second call should be a no-op, got created=%v err=%v", created, err)
	}
	if again.ID != admin.ID {
		t.Fatalf("expected the existing admin")
	}
}

func TestRequireRole(t *testing.T) {
	admin := &domain.User{Role: domain.RoleAdmin}
	user := &domain.User{Role: domain.RoleUser}

	if err := RequireRole(admin, domain.RoleAdmin); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
	if err := RequireRole(user, domain.RoleAdmin, domain.RoleUser); err != nil {
		t.Fatalf("user should pass either role: %v", err)
	}
	if err := RequireRole(user, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := RequireRole(nil, domain.RoleAdmin); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nil user, got %v", err)
	}
}
