// Package storage defines the persistence collaborator for the registration
// subsystem. Stores are interface-driven to keep the domain logic testable
// and to allow swapping in-memory or external persistence without rewiring
// business code. The store is the sole arbiter of account uniqueness; callers
// must rely on InsertAccount's insert-if-absent semantics rather than
// check-then-insert.
package storage

import (
	"context"
	"time"
)

// AccountKind distinguishes full accounts from reduced-privilege guests.
type AccountKind string

const (
	KindUser  AccountKind = "user"
	KindGuest AccountKind = "guest"
)

// Account is the persisted account record. Identity is immutable once created.
type Account struct {
	UserID       string
	Localpart    string
	Kind         AccountKind
	PasswordHash []byte
	CreatedAt    time.Time
}

// Device is a client session identifier scoped to one account. DeviceID is
// unique per account, not globally.
type Device struct {
	ID          string
	UserID      string
	DisplayName string
}

// AccessToken binds a token value to (account, device). At most one active
// token exists per device.
type AccessToken struct {
	Token    string
	UserID   string
	DeviceID string
	IssuedAt time.Time
}

// Store is the persistence capability consumed by the registration service.
//
// Implementations signal outcomes with pkg/sentinel errors:
//   - InsertAccount returns sentinel.ErrConflict when the localpart is
//     already claimed (the commit-time race the advisory availability check
//     cannot rule out).
//   - TokenByValue returns sentinel.ErrNotFound for unknown or invalidated
//     tokens.
//   - Any backend fault, including timeouts, maps to sentinel.ErrUnavailable
//     (possibly wrapped); a timeout is never reported as "available".
type Store interface {
	// UsernameExists reports whether an account already owns the localpart.
	// Advisory only: a false result does not reserve the name.
	UsernameExists(ctx context.Context, localpart string) (bool, error)

	// InsertAccount atomically creates the account if and only if its
	// localpart is unclaimed.
	InsertAccount(ctx context.Context, account Account) error

	// InsertOrReplaceDeviceToken upserts the device and replaces any token
	// previously bound to (account, device), atomically with respect to
	// concurrent issuance for the same device. Tokens of other devices are
	// untouched.
	InsertOrReplaceDeviceToken(ctx context.Context, device Device, token AccessToken) error

	// TokenByValue resolves a token for authorization checks. Invalidated
	// tokens are indistinguishable from tokens that never existed.
	TokenByValue(ctx context.Context, value string) (*AccessToken, error)
}
