package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateToken creates a signed HS256 token carrying the identity claims
func GenerateToken(secret string, id Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": id.UserID,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	if id.Name != "" {
		claims["name"] = id.Name
	}
	if id.Email != "" {
		claims["email"] = id.Email
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
