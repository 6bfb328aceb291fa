package domain

import "time"

// Session binds one issued bearer token to a user and the password version
// captured when the token was minted. Only the token fingerprint is stored.
type Session struct {
	ID               string    `json:"id"`
	TokenFingerprint string    `json:"token_fingerprint"`
	UserID           string    `json:"user_id"`
	PasswordVersion  string    `json:"password_version"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
