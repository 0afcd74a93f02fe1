package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/izikwen-client/users"
)

// Claims are the fields of an access token worth showing to a user.
type Claims struct {
	Email string         `json:"email"`
	Role  users.RoleType `json:"role"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an access token without verifying it. The result is for
// display only: the server stays the judge of validity, so expiry is never
// checked here.
func ParseClaims(accessToken string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}
