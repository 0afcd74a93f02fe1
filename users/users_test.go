package users_test

import (
	"testing"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"github.com/jrsteele09/izikwen-client/users"
	"github.com/stretchr/testify/require"
)

func TestValidateRegistration(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		confirm  string
		wantErr  error
	}{
		{"valid", "jane@example.com", "password1", "password1", nil},
		{"missing confirm", "jane@example.com", "password1", "", users.ErrMissingFields},
		{"bad email", "jane@example", "password1", "password1", users.ErrInvalidEmail},
		{"email with space", "jane doe@example.com", "password1", "password1", users.ErrInvalidEmail},
		{"short password", "jane@example.com", "short", "short", users.ErrPasswordTooShort},
		{"mismatch", "jane@example.com", "password1", "password2", users.ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidateRegistration(tt.email, tt.password, tt.confirm)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, errors.ErrInvalidInput)
		})
	}
}

func TestValidatePasswordChange(t *testing.T) {
	require.NoError(t, users.ValidatePasswordChange("old-password", "new-password", "new-password"))
	require.ErrorIs(t, users.ValidatePasswordChange("", "new-password", "new-password"), users.ErrMissingFields)
	require.ErrorIs(t, users.ValidatePasswordChange("old-password", "1234567", "1234567"), users.ErrPasswordTooShort)
	require.ErrorIs(t, users.ValidatePasswordChange("old-password", "new-password", "other-password"), users.ErrPasswordMismatch)
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Password123"))
	require.ErrorIs(t, users.ValidatePasswordStrength("Pass1"), users.ErrPasswordTooShort)
	require.ErrorContains(t, users.ValidatePasswordStrength("password123"), "uppercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("PASSWORD123"), "lowercase")
	require.ErrorContains(t, users.ValidatePasswordStrength("Passwordabc"), "number")
}

func TestUser_RoleAndDisplayName(t *testing.T) {
	admin := &users.User{Email: "ops@example.com", Role: users.RoleAdmin}
	require.True(t, admin.IsAdmin())
	require.Equal(t, "ops@example.com", admin.DisplayName())

	jane := &users.User{FirstName: "Jane", LastName: "Doe", Role: users.RoleUser}
	require.False(t, jane.IsAdmin())
	require.Equal(t, "Jane Doe", jane.DisplayName())

	var nobody *users.User
	require.False(t, nobody.IsAdmin())
}
