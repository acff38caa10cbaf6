// Package token mints and validates access tokens. Tokens are HS256 JWTs
// carrying the owning user and device; validity is additionally gated by the
// store row, so replacing a device's token invalidates the old value even
// though its signature still verifies.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "hearth/pkg/domain-errors"
)

// Claims are the JWT claims embedded in an access token.
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens with a shared HMAC key.
type Manager struct {
	signingKey []byte
	issuer     string
}

func NewManager(signingKey, issuer string) *Manager {
	return &Manager{signingKey: []byte(signingKey), issuer: issuer}
}

// Mint signs a fresh access token bound to (user, device). The embedded jti
// makes every minted value unique even for the same pair.
func (m *Manager) Mint(userID, deviceID string, issuedAt time.Time) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(issuedAt),
			Issuer:   m.issuer,
			ID:       uuid.NewString(),
		},
	})
	return t.SignedString(m.signingKey)
}

// Parse verifies the signature and returns the claims. Storage-level
// invalidation is the caller's concern; Parse only vouches for integrity.
func (m *Manager) Parse(value string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return m.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}
