package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
	maxEmailLength    = 254
)

// ValidatePassword enforces length plus at least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return errors.New("password must contain at least one letter and one digit")
	}
	return nil
}

// ValidateEmail checks address syntax and, when domain is non-empty, that the
// address belongs to it.
func ValidateEmail(email, domain string) error {
	if len(email) > maxEmailLength {
		return errors.New("email is too long")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return errors.New("invalid email format")
	}
	if domain != "" && !strings.HasSuffix(strings.ToLower(email), "@"+domain) {
		return fmt.Errorf("only @%s addresses can register", domain)
	}
	return nil
}
