package users

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/jrsteele09/izikwen-client/internal/errors"
)

// RoleType is the account role reported by /me.
type RoleType string

const (
	RoleUser  RoleType = "USER"
	RoleAdmin RoleType = "ADMIN"
)

const MinPasswordLength = 8

var (
	ErrMissingFields    = fmt.Errorf("please fill in all fields: %w", errors.ErrInvalidInput)
	ErrInvalidEmail     = fmt.Errorf("please enter a valid email address: %w", errors.ErrInvalidInput)
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, errors.ErrInvalidInput)
	ErrPasswordMismatch = fmt.Errorf("passwords do not match: %w", errors.ErrInvalidInput)
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type User struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Country   string   `json:"country"`
	Role      RoleType `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName returns "First Last", falling back to the email address.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateRegistration applies the sign-up form rules.
func ValidateRegistration(email, password, confirm string) error {
	if email == "" || password == "" || confirm == "" {
		return ErrMissingFields
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidatePasswordChange applies the change-password form rules.
func ValidatePasswordChange(current, newPassword, confirm string) error {
	if current == "" || newPassword == "" || confirm == "" {
		return ErrMissingFields
	}
	if len(newPassword) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
//
// The server only enforces the length; this is advisory.
func ValidatePasswordStrength(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}
