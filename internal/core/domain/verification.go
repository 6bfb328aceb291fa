package domain

import "time"

// PurposePasswordReset scopes verification codes and reset tokens.
const PurposePasswordReset = "password_reset"

// VerificationCode is an emailed one-time code. Only the most recent
// unverified code for an (email, purpose) pair is live.
type VerificationCode struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Purpose   string    `json:"purpose"`
	Code      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
	Verified  bool      `json:"verified"`
}

// Expired reports whether now is past the code's expiry.
func (c *VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
