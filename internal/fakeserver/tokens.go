package fakeserver

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenTTL = 15 * time.Minute

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type hmacSigner struct {
	secret []byte
}

func newHMACSigner(secret string) *hmacSigner {
	return &hmacSigner{secret: []byte(secret)}
}

func (h *hmacSigner) sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signed, nil
}

func (h *hmacSigner) accessToken(acc *account) (string, error) {
	now := NowTimeFunc()
	return h.sign(jwt.MapClaims{
		"sub":          strconv.FormatInt(acc.ID, 10),
		"email":        acc.Email,
		"role":         acc.Role,
		"tokenVersion": acc.TokenVersion,
		"iat":          now.Unix(),
		"exp":          now.Add(accessTokenTTL).Unix(),
		"jti":          uuid.NewString(),
	})
}

func opaqueToken() string {
	return uuid.NewString()
}
