// Package offline implements the client-resident credential mirror that lets
// a device authenticate without the server. It stores a fast verifier derived
// from username and password, never the password or the server hash.
package offline

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stallpos/auth-service/internal/core/credential"
	"github.com/stallpos/auth-service/internal/core/domain"
	"github.com/stallpos/auth-service/internal/core/secretword"
)

// ErrSeedSource is returned when a caller other than EnsureSeeds tries to
// write a seed record.
var ErrSeedSource = errors.New("offline: seed provenance is reserved for EnsureSeeds")

const blobVersion = 1

// Seed is a bootstrap account guaranteed to exist on the device.
type Seed struct {
	Username string
	Password string
	Role     string
	StallID  string
}

// Upsert refreshes a record after a successful online round trip.
type Upsert struct {
	User     UserSnapshot
	Password string
	// Recovery is merged field by field; nil leaves recovery untouched.
	Recovery *RecoveryPatch
	Source   Source
	// LoggedIn stamps the last-login time.
	LoggedIn bool
}

type blob struct {
	Version int                `json:"version"`
	Records map[string]*Record `json:"records"`
}

// Mirror is the offline credential store. Every operation loads the blob,
// mutates it and writes it back under a single lock.
type Mirror struct {
	mu    sync.Mutex
	store Storage
	seeds []Seed
	log   zerolog.Logger
	now   func() time.Time
}

func NewMirror(store Storage, seeds []Seed, log zerolog.Logger) *Mirror {
	return &Mirror{
		store: store,
		seeds: seeds,
		log:   log,
		now:   time.Now,
	}
}

// EnsureSeeds creates missing seed records and re-derives the verifier of
// every record still tagged seed. Records that were synced or edited are left
// alone.
func (m *Mirror) EnsureSeeds(ctx context.Context) error {
	return m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		changed := false
		now := m.now().UTC()
		for _, seed := range m.seeds {
			key := credential.NormalizeUsername(seed.Username)
			if key == "" {
				continue
			}
			verifier := credential.DeriveOfflineVerifier(seed.Username, seed.Password)
			rec, ok := records[key]
			switch {
			case !ok:
				role := seed.Role
				if role == "" {
					role = domain.RoleUser
				}
				records[key] = &Record{
					User: UserSnapshot{
						ID:       "seed:" + key,
						Username: seed.Username,
						Role:     role,
						Status:   domain.StatusActive,
						StallID:  seed.StallID,
					},
					Verifier:          verifier,
					PasswordUpdatedAt: now,
					Source:            SourceSeed,
				}
				m.log.Debug().Str("username", key).Msg("offline seed created")
				changed = true
			case rec.Source == SourceSeed && rec.Verifier != verifier:
				rec.Verifier = verifier
				rec.PasswordUpdatedAt = now
				m.log.Debug().Str("username", key).Msg("offline seed verifier refreshed")
				changed = true
			}
		}
		return changed, nil
	})
}

// Login checks username and password against the stored verifier. Unknown
// usernames and wrong passwords both fail with ErrInvalidCredentials.
func (m *Mirror) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res *LoginResult
	err := m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		rec, ok := records[credential.NormalizeUsername(username)]
		candidate := credential.DeriveOfflineVerifier(username, password)
		if !ok || subtle.ConstantTimeCompare([]byte(rec.Verifier), []byte(candidate)) != 1 {
			return false, domain.ErrInvalidCredentials
		}
		if rec.User.Status != "" && rec.User.Status != domain.StatusActive {
			return false, domain.ErrAccountInactive
		}
		now := m.now().UTC()
		rec.LastLoginAt = &now
		res = &LoginResult{User: rec.User, PasswordVersion: rec.Verifier}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpsertFromPassword merges a server-confirmed user and password into the
// mirror. Non-empty snapshot fields from the server win; provenance moves off
// seed and never back.
func (m *Mirror) UpsertFromPassword(ctx context.Context, in Upsert) error {
	if in.Source == SourceSeed {
		return ErrSeedSource
	}
	if in.Source == "" {
		in.Source = SourceServer
	}
	key := credential.NormalizeUsername(in.User.Username)
	if key == "" {
		return domain.NewValidationError("username", "is required")
	}
	if in.Password == "" {
		return domain.NewValidationError("password", "is required")
	}

	return m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		now := m.now().UTC()
		rec, ok := records[key]
		if !ok {
			rec = &Record{}
			records[key] = rec
		}
		rec.User = mergeSnapshot(rec.User, in.User)

		verifier := credential.DeriveOfflineVerifier(in.User.Username, in.Password)
		if rec.Verifier != verifier {
			rec.Verifier = verifier
			rec.PasswordUpdatedAt = now
		}
		if in.Recovery != nil && in.Recovery.apply(rec) {
			rec.Recovery.UpdatedAt = now
		}
		if in.LoggedIn {
			rec.LastLoginAt = &now
		}
		rec.Source = in.Source
		return true, nil
	})
}

// UpdatePassword stores a new verifier for a record already on the device.
func (m *Mirror) UpdatePassword(ctx context.Context, username, newPassword string) error {
	if err := credential.ValidatePassword(newPassword); err != nil {
		return err
	}
	return m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		rec, ok := records[credential.NormalizeUsername(username)]
		if !ok {
			return false, domain.ErrAccountNotFound
		}
		m.setVerifier(rec, username, newPassword)
		return true, nil
	})
}

// UpdateRecovery applies patch to the recovery metadata of username.
func (m *Mirror) UpdateRecovery(ctx context.Context, username string, patch RecoveryPatch) error {
	if patch.SecretWord.Supplied() && patch.SecretWord.value != "" {
		if err := credential.ValidateSecretWord(patch.SecretWord.value); err != nil {
			return err
		}
		patch.SecretWord = Set(credential.NormalizeSecretWord(patch.SecretWord.value))
	}
	return m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		rec, ok := records[credential.NormalizeUsername(username)]
		if !ok {
			return false, domain.ErrAccountNotFound
		}
		if !patch.apply(rec) {
			return false, nil
		}
		rec.Recovery.UpdatedAt = m.now().UTC()
		demote(rec)
		return true, nil
	})
}

// SecretWordChallenge returns the sorted 1-indexed positions to ask for.
func (m *Mirror) SecretWordChallenge(ctx context.Context, username string) ([]int, error) {
	rec, err := m.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if rec.SecretWord == "" {
		return nil, domain.ErrSecretWordNotSet
	}
	n := len([]rune(rec.SecretWord))
	return secretword.GeneratePositionQuestions(n, secretword.DefaultQuestions), nil
}

// RecoverWithSecretWord resets the local password when every challenged
// position is answered correctly.
func (m *Mirror) RecoverWithSecretWord(ctx context.Context, username string, positions []int, answers map[int]string, newPassword string) error {
	if err := credential.ValidatePassword(newPassword); err != nil {
		return err
	}
	return m.mutate(ctx, func(records map[string]*Record) (bool, error) {
		rec, ok := records[credential.NormalizeUsername(username)]
		if !ok {
			return false, domain.ErrAccountNotFound
		}
		if rec.SecretWord == "" {
			return false, domain.ErrSecretWordNotSet
		}
		if !secretword.VerifyChallenge(rec.SecretWord, positions, answers) {
			m.log.Warn().Str("username", rec.User.Username).Msg("offline secret word challenge failed")
			return false, domain.ErrChallengeFailed
		}
		m.setVerifier(rec, username, newPassword)
		return true, nil
	})
}

// Lookup returns a copy of the record for username.
func (m *Mirror) Lookup(ctx context.Context, username string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	rec, ok := records[credential.NormalizeUsername(username)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Mirror) setVerifier(rec *Record, username, password string) {
	rec.Verifier = credential.DeriveOfflineVerifier(username, password)
	rec.PasswordUpdatedAt = m.now().UTC()
	demote(rec)
}

// demote marks a locally edited seed as manual so EnsureSeeds stops
// rewriting it.
func demote(rec *Record) {
	if rec.Source == SourceSeed {
		rec.Source = SourceManual
	}
}

func mergeSnapshot(prev, next UserSnapshot) UserSnapshot {
	out := prev
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&out.ID, next.ID},
		{&out.Username, next.Username},
		{&out.Role, next.Role},
		{&out.Status, next.Status},
		{&out.StallID, next.StallID},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	return out
}

func (m *Mirror) mutate(ctx context.Context, fn func(map[string]*Record) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, err := m.load(ctx)
	if err != nil {
		return err
	}
	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return m.save(ctx, records)
}

func (m *Mirror) load(ctx context.Context) (map[string]*Record, error) {
	data, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]*Record{}, nil
	}
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("offline: decoding mirror: %w", err)
	}
	if b.Records == nil {
		b.Records = map[string]*Record{}
	}
	// A hand-edited or truncated blob can carry null entries.
	for key, rec := range b.Records {
		if rec == nil {
			delete(b.Records, key)
		}
	}
	return b.Records, nil
}

func (m *Mirror) save(ctx context.Context, records map[string]*Record) error {
	data, err := json.Marshal(blob{Version: blobVersion, Records: records})
	if err != nil {
		return fmt.Errorf("offline: encoding mirror: %w", err)
	}
	return m.store.Save(ctx, data)
}
