package crypto

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the identity carried inside a bearer token. The API layer
// trusts these fields after signature verification; no credential material is
// ever embedded.
type TokenClaims struct {
	UserID        string
	WalletAddress string
	Email         string
}

// tokenClaims is the wire form of TokenClaims. The user id rides in the
// standard subject claim.
type tokenClaims struct {
	WalletAddress string `json:"wal,omitempty"`
	Email         string `json:"eml,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuth mints and verifies HS256-signed JWT bearer tokens.
type TokenAuth struct {
	secret []byte
}

// NewTokenAuth creates a TokenAuth with the given shared secret.
func NewTokenAuth(secret string) (*TokenAuth, error) {
	if secret == "" {
		return nil, errors.New("crypto: token secret must not be empty")
	}
	return &TokenAuth{secret: []byte(secret)}, nil
}

// Mint signs the claims into a bearer token valid for ttl.
func (t *TokenAuth) Mint(claims TokenClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		WalletAddress: claims.WalletAddress,
		Email:         claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("crypto: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry, returning the claims on
// success. Only HMAC-signed tokens are accepted; an asymmetric alg header is
// rejected before any key material is used.
func (t *TokenAuth) Verify(token string) (TokenClaims, error) {
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return TokenClaims{}, fmt.Errorf("crypto: verify token: %w", err)
	}
	if !parsed.Valid {
		return TokenClaims{}, errors.New("crypto: invalid token")
	}
	if claims.Subject == "" {
		return TokenClaims{}, errors.New("crypto: token missing subject")
	}
	return TokenClaims{
		UserID:        claims.Subject,
		WalletAddress: claims.WalletAddress,
		Email:         claims.Email,
	}, nil
}
