package offline

import (
	"time"

	"github.com/stallpos/auth-service/internal/core/domain"
)

// Source tags where a record came from.
type Source string

const (
	SourceSeed   Source = "seed"
	SourceServer Source = "server"
	SourceManual Source = "manual"
)

// UserSnapshot is the denormalized copy of a server user kept on the device.
// It never carries the server's password hash.
type UserSnapshot struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	StallID  string `json:"stall_id,omitempty"`
}

// SnapshotOf copies the fields of u that the mirror keeps.
func SnapshotOf(u *domain.User) UserSnapshot {
	return UserSnapshot{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Status:   u.Status,
		StallID:  u.StallID,
	}
}

// Recovery is the recovery metadata cached for a user.
type Recovery struct {
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Record is one offline credential entry, keyed by normalized username.
type Record struct {
	User              UserSnapshot `json:"user"`
	Verifier          string       `json:"verifier"`
	PasswordUpdatedAt time.Time    `json:"password_updated_at"`
	Recovery          Recovery     `json:"recovery"`
	// SecretWord is kept in clear on the device so the positional challenge
	// can run without the server.
	SecretWord  string     `json:"secret_word,omitempty"`
	Source      Source     `json:"source"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Value is an optional string in a patch. The zero Value means "not
// supplied" and keeps the previous value; Clear is an explicit removal.
type Value struct {
	set   bool
	value string
}

// Set returns a Value that overwrites the field with v.
func Set(v string) Value { return Value{set: true, value: v} }

// Clear returns a Value that empties the field.
func Clear() Value { return Value{set: true} }

// SetIfPresent is Set for non-empty v and "not supplied" otherwise.
func SetIfPresent(v string) Value {
	if v == "" {
		return Value{}
	}
	return Set(v)
}

// Supplied reports whether the patch touches the field.
func (v Value) Supplied() bool { return v.set }

func (v Value) apply(dst *string) bool {
	if !v.set || *dst == v.value {
		return false
	}
	*dst = v.value
	return true
}

// RecoveryPatch updates recovery metadata field by field.
type RecoveryPatch struct {
	Phone      Value
	Email      Value
	Hint       Value
	SecretWord Value
}

func (p RecoveryPatch) apply(rec *Record) bool {
	changed := p.Phone.apply(&rec.Recovery.Phone)
	changed = p.Email.apply(&rec.Recovery.Email) || changed
	changed = p.Hint.apply(&rec.Recovery.Hint) || changed
	changed = p.SecretWord.apply(&rec.SecretWord) || changed
	return changed
}

// LoginResult is returned by a successful offline login.
type LoginResult struct {
	User UserSnapshot
	// PasswordVersion is the local verifier. It is not comparable with the
	// server's password version.
	PasswordVersion string
}
