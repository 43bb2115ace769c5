// Package auth signs the short-lived tokens that admit a dashboard client to its
// own live feed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const feedIssuer = "membership-settlement"

var ErrInvalidToken = errors.New("invalid feed token")

// FeedTokens issues and verifies HS256 tokens whose subject is a user id.
type FeedTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewFeedTokens creates a FeedTokens signing with secret. A non-positive ttl
// selects 15 minutes.
func NewFeedTokens(secret string, ttl time.Duration) *FeedTokens {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &FeedTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token for userID and its expiry.
func (f *FeedTokens) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := f.now()
	expiresAt := now.Add(f.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    feedIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(f.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign feed token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, issuer and expiry of token and returns its user id.
func (f *FeedTokens) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return f.secret, nil
	}, jwt.WithIssuer(feedIssuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(f.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
