// Package auth provides the credential validator consumed by the request
// gate, with a JWT (HS256) implementation.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential marks a credential the validator rejected: missing,
// malformed, expired, or signed with the wrong key. Any validator error NOT
// wrapping this sentinel means the validator itself malfunctioned, and the
// gate fails open for that check.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims is the identity resolved from a valid credential. Expiry is
// enforced by the validator itself during Validate.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Validator decodes a credential into identity claims or a rejection.
type Validator interface {
	Validate(credential string) (*Claims, error)
}

// JWTManager validates and issues HS256 tokens.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token for the given identity.
func (m *JWTManager) Generate(userID, username, role string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "ws-gateway",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Validate implements Validator. Parse failures (including expiry) are
// rejections; the HS256 signing-method check guards against algorithm
// confusion.
func (m *JWTManager) Validate(credential string) (*Claims, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrInvalidCredential)
	}

	token, err := jwt.ParseWithClaims(
		credential,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: bad claims", ErrInvalidCredential)
	}
	return claims, nil
}

// NopValidator accepts every request with an anonymous identity. Used when
// authentication is explicitly disabled (local development, load tests).
type NopValidator struct{}

func (NopValidator) Validate(string) (*Claims, error) {
	return &Claims{UserID: "anonymous", Username: "anonymous", Role: "guest"}, nil
}

// ExtractCredential pulls the token from the Authorization header (Bearer
// scheme) or, failing that, the "token" query parameter, which WebSocket
// clients commonly use. Returns "" when neither is present.
func ExtractCredential(r *http.Request) string {
	const bearerPrefix = "Bearer "
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimPrefix(h, bearerPrefix)
	}
	return r.URL.Query().Get("token")
}
