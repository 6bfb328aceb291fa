// Package gateway combines the remote API with the offline mirror: online
// first, offline when the server cannot be reached, and a mirror refresh
// after every successful online round trip.
package gateway

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/client/offline"
	"github.com/stallpos/auth-service/internal/client/remote"
	"github.com/stallpos/auth-service/internal/core/domain"
)

// Remote is the subset of the API client the gateway needs.
type Remote interface {
	Login(ctx context.Context, username, password string) (*remote.Session, error)
	ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (*remote.Session, error)
	UpdateRecovery(ctx context.Context, token string, in remote.RecoveryUpdate) (*domain.User, error)
	ResetWithToken(ctx context.Context, resetToken, newPassword string) (*remote.Reset, error)
	ResetByContact(ctx context.Context, username, method, contact, newPassword string) (*remote.Reset, error)
	ResetWithSecretWord(ctx context.Context, username, secretWord, newPassword string) (*remote.Reset, error)
}

// Login is the outcome of Gateway.Login. Token is empty for offline logins.
type Login struct {
	User            offline.UserSnapshot
	Token           string
	PasswordVersion string
	Offline         bool
}

type Gateway struct {
	remote Remote
	mirror *offline.Mirror
	log    zerolog.Logger
}

func New(r Remote, mirror *offline.Mirror, log zerolog.Logger) *Gateway {
	return &Gateway{remote: r, mirror: mirror, log: log}
}

// Login authenticates against the server and refreshes the mirror. Only when
// the server is unreachable does it fall back to the mirror; a rejection from
// the server is final.
func (g *Gateway) Login(ctx context.Context, username, password string) (*Login, error) {
	s, err := g.remote.Login(ctx, username, password)
	if err == nil {
		g.refresh(ctx, s.User, password, true)
		return &Login{
			User:            offline.SnapshotOf(s.User),
			Token:           s.Token,
			PasswordVersion: s.PasswordVersion,
		}, nil
	}
	if !errors.Is(err, remote.ErrUnreachable) {
		return nil, err
	}

	g.log.Warn().Err(err).Str("username", username).Msg("server unreachable, trying offline login")
	res, offErr := g.mirror.Login(ctx, username, password)
	if offErr != nil {
		return nil, offErr
	}
	return &Login{User: res.User, PasswordVersion: res.PasswordVersion, Offline: true}, nil
}

// ChangePassword changes the password online and stores the new verifier.
func (g *Gateway) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) (*remote.Session, error) {
	s, err := g.remote.ChangePassword(ctx, token, oldPassword, newPassword)
	if err != nil {
		return nil, err
	}
	g.refresh(ctx, s.User, newPassword, false)
	return s, nil
}

// UpdateRecovery updates the server profile and then the local copy. The
// secret word is also kept locally for offline recovery.
func (g *Gateway) UpdateRecovery(ctx context.Context, token string, in remote.RecoveryUpdate) (*domain.User, error) {
	u, err := g.remote.UpdateRecovery(ctx, token, in)
	if err != nil {
		return nil, err
	}
	patch := offline.RecoveryPatch{
		Phone: offline.Set(u.Phone),
		Email: offline.Set(u.Email),
	}
	if in.SecretWord != nil {
		patch.SecretWord = offline.Set(*in.SecretWord)
	}
	if err := g.mirror.UpdateRecovery(ctx, u.Username, patch); err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		g.log.Warn().Err(err).Str("username", u.Username).Msg("offline recovery refresh failed")
	}
	return u, nil
}

func (g *Gateway) ResetWithToken(ctx context.Context, resetToken, newPassword string) (*remote.Reset, error) {
	res, err := g.remote.ResetWithToken(ctx, resetToken, newPassword)
	if err != nil {
		return nil, err
	}
	g.refresh(ctx, res.User, newPassword, false)
	return res, nil
}

func (g *Gateway) ResetByContact(ctx context.Context, username, method, contact, newPassword string) (*remote.Reset, error) {
	res, err := g.remote.ResetByContact(ctx, username, method, contact, newPassword)
	if err != nil {
		return nil, err
	}
	g.refresh(ctx, res.User, newPassword, false)
	return res, nil
}

func (g *Gateway) ResetWithSecretWord(ctx context.Context, username, secretWord, newPassword string) (*remote.Reset, error) {
	res, err := g.remote.ResetWithSecretWord(ctx, username, secretWord, newPassword)
	if err != nil {
		return nil, err
	}
	g.refresh(ctx, res.User, newPassword, false)
	return res, nil
}

// refresh writes the server's view into the mirror. Failures are logged and
// never fail the online operation.
func (g *Gateway) refresh(ctx context.Context, u *domain.User, password string, loggedIn bool) {
	if u == nil {
		return
	}
	err := g.mirror.UpsertFromPassword(ctx, offline.Upsert{
		User:     offline.SnapshotOf(u),
		Password: password,
		Recovery: &offline.RecoveryPatch{
			Phone: offline.SetIfPresent(u.Phone),
			Email: offline.SetIfPresent(u.Email),
		},
		Source:   offline.SourceServer,
		LoggedIn: loggedIn,
	})
	if err != nil {
		g.log.Warn().Err(err).Str("username", u.Username).Msg("offline mirror refresh failed")
	}
}
