package auth

import (
	"errors"
	"fmt"

	ierrors "github.com/jrsteele09/izikwen-client/internal/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountExists      = errors.New("this email is already registered")
	ErrNoAccessToken      = errors.New("server returned no access token")
	ErrInvalidCode        = fmt.Errorf("please enter the 6-digit code: %w", ierrors.ErrInvalidInput)
	ErrMissingTwoFAToken  = fmt.Errorf("2fa session expired, please login again: %w", ierrors.ErrInvalidInput)
)
