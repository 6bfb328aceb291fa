package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User models an authenticated actor in the system.
type User struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	PasswordHash      string    `json:"-"`
	PasswordVersion   string    `json:"password_version"`
	PasswordUpdatedAt time.Time `json:"password_updated_at"`
	Phone             string    `json:"phone,omitempty"`
	Email             string    `json:"email,omitempty"`
	SecretWordHash    string    `json:"-"`
	SecretWordLength  int       `json:"secret_word_length,omitempty"`
	RecoveryUpdatedAt time.Time `json:"recovery_updated_at,omitempty"`
	StallID           string    `json:"stall_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// HasSecretWord reports whether a secret word has been configured for recovery.
func (u *User) HasSecretWord() bool {
	return u.SecretWordHash != ""
}

// UserUpdate lists the mutable user fields. Nil pointers leave the stored value untouched.
type UserUpdate struct {
	PasswordHash      *string
	PasswordVersion   *string
	PasswordUpdatedAt *time.Time
	Phone             *string
	Email             *string
	SecretWordHash    *string
	SecretWordLength  *int
	RecoveryUpdatedAt *time.Time
	Status            *string
	StallID           *string
}

// Apply copies the set fields of upd onto u.
func (upd UserUpdate) Apply(u *User) {
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.PasswordVersion != nil {
		u.PasswordVersion = *upd.PasswordVersion
	}
	if upd.PasswordUpdatedAt != nil {
		u.PasswordUpdatedAt = *upd.PasswordUpdatedAt
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.SecretWordHash != nil {
		u.SecretWordHash = *upd.SecretWordHash
	}
	if upd.SecretWordLength != nil {
		u.SecretWordLength = *upd.SecretWordLength
	}
	if upd.RecoveryUpdatedAt != nil {
		u.RecoveryUpdatedAt = *upd.RecoveryUpdatedAt
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.StallID != nil {
		u.StallID = *upd.StallID
	}
}
