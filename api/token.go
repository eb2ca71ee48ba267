package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pawsaarthi/rescue-api/models"
)

// Claims are the access token claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 access token for user
func IssueToken(secret []byte, user *models.User, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("server misconfigured: JWT_SECRET is not set")
	}
	expires := now.Add(ttl)
	claims := Claims{
		Role: user.Details.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken verifies the signature and expiry of an access token
func ParseToken(secret []byte, token string, now time.Time) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("server misconfigured: JWT_SECRET is not set")
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
