// Package identity issues and verifies the signed anonymous identity tokens
// that carry a caller's opaque user hash. There are no accounts: a hash is
// minted on first contact and lives in the token alone, so possession of the
// token is the identity.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired identity token")

// Issuer signs and verifies identity tokens with a shared HMAC secret
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. ttl bounds how long an issued token verifies.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue mints a fresh opaque user hash and returns it with its signed token
func (i *Issuer) Issue() (string, string, error) {
	userHash, err := newUserHash()
	if err != nil {
		return "", "", err
	}

	token, err := i.IssueFor(userHash)
	if err != nil {
		return "", "", err
	}

	return token, userHash, nil
}

// IssueFor signs a token for an existing user hash, refreshing its lifetime
func (i *Issuer) IssueFor(userHash string) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userHash,
		"iat":  now.Unix(),
		"exp":  now.Add(i.ttl).Unix(),
		"type": "identity",
	})

	return token.SignedString(i.secret)
}

// Verify checks a token's signature and expiry and returns the user hash it
// carries
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != "identity" {
		return "", ErrInvalidToken
	}

	userHash, ok := claims["sub"].(string)
	if !ok || userHash == "" {
		return "", ErrInvalidToken
	}

	return userHash, nil
}

// newUserHash generates an opaque identity hash
func newUserHash() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
