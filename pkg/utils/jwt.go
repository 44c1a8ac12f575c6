package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anterny/tokrelay/internal/transfer"
)

// GenerateStateToken signs the (account_label, mode) pair into the OAuth
// state parameter so the callback can recover it without server-side state.
func GenerateStateToken(secretKey, accountLabel, mode string, ttl time.Duration) (string, error) {
	claims := transfer.StateClaims{
		AccountLabel: accountLabel,
		Mode:         mode,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "tokrelay",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ValidateStateToken parses and verifies a state token produced by
// GenerateStateToken.
func ValidateStateToken(secretKey, tokenString string) (*transfer.StateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &transfer.StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*transfer.StateClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid state token")
}
