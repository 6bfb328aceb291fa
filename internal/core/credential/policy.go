package credential

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/stallpos/auth-service/internal/core/domain"
)

const (
	MinPasswordLength   = 6
	MinPasswordSpecials = 2
	MinSecretWordLength = 6
	MaxSecretWordLength = 20
	passwordField       = "password"
	secretWordField     = "secret_word"
)

// ValidatePassword enforces the password policy applied by registration,
// password change and every recovery reset.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return domain.NewValidationError(passwordField, fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	specials := 0
	for _, r := range password {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			specials++
		}
	}
	if specials < MinPasswordSpecials {
		return domain.NewValidationError(passwordField, fmt.Sprintf("must contain at least %d special characters", MinPasswordSpecials))
	}
	return nil
}

// NormalizeSecretWord trims and lowercases a secret word.
func NormalizeSecretWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// ValidateSecretWord requires 6-20 ASCII letters or digits after trimming.
func ValidateSecretWord(word string) error {
	w := strings.TrimSpace(word)
	if len(w) < MinSecretWordLength || len(w) > MaxSecretWordLength {
		return domain.NewValidationError(secretWordField, fmt.Sprintf("must be %d-%d characters", MinSecretWordLength, MaxSecretWordLength))
	}
	for _, r := range w {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return domain.NewValidationError(secretWordField, "must contain only letters and digits")
		}
	}
	return nil
}
