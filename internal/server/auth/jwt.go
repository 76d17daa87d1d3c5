// Package auth mints and verifies access tokens and hashes passwords.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/healthvault/internal/common"
	"github.com/dmitrijs2005/healthvault/internal/server/models"
)

// Claims carries the requester identity next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func GenerateToken(id models.Identity, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
			Subject:   id.UserID,
		},
		UserID: id.UserID,
		Email:  id.Email,
	})

	return token.SignedString(secretKey)
}

// ParseToken verifies the signature and expiry and returns the identity.
// Expired tokens yield common.ErrTokenExpired; anything else that fails
// yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (models.Identity, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, common.ErrTokenExpired
		}
		return models.Identity{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.UserID == "" {
		return models.Identity{}, common.ErrInvalidToken
	}

	return models.Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
