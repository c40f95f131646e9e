package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrTokenMissing = errors.New("Authentication error: Token missing")
	ErrInvalidToken = errors.New("Authentication error: Invalid token")
)

// Identity is the authenticated user attached to a connection or request.
// It is produced once by the Authenticator and never rebuilt from client payloads.
type Identity struct {
	UserID string `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// DisplayName falls back to the user id when the token carries no name
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.UserID
}

// Authenticator verifies HS256 bearer tokens signed with a shared secret
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// ExtractToken reads the bearer token from the Authorization header or the
// "token" query parameter. The header wins when both are present.
func ExtractToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Authenticate extracts and verifies the token presented with the request
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	token := ExtractToken(r)
	if token == "" {
		return Identity{}, ErrTokenMissing
	}
	return a.Verify(token)
}

// Verify checks the signature and expiry of token and decodes its identity claims
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{
		UserID: claimID(claims),
		Name:   claimString(claims, "name"),
		Email:  claimString(claims, "email"),
	}
	if id.UserID == "" {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

func claimID(claims jwt.MapClaims) string {
	for _, key := range []string{"user_id", "id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
