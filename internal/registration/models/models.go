// Package models holds the request/response shapes and identifier grammar
// for the registration subsystem.
package models

import (
	"hearth/internal/uia"
	dErrors "hearth/pkg/domain-errors"
)

// AccountKind selects the registration path. Guests bypass username
// validation and the auth flow entirely.
type AccountKind string

const (
	KindUser  AccountKind = "user"
	KindGuest AccountKind = "guest"
)

// ParseAccountKind maps the request's kind parameter onto an AccountKind.
// An absent kind defaults to a full user registration.
func ParseAccountKind(raw string) (AccountKind, error) {
	switch raw {
	case "", string(KindUser):
		return KindUser, nil
	case string(KindGuest):
		return KindGuest, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown registration kind")
	}
}

// AuthData is the client's auth dict for one round of the interactive flow.
type AuthData struct {
	Type     string `json:"type,omitempty"`
	Session  string `json:"session,omitempty"`
	Password string `json:"password,omitempty"`
}

// Submission converts the wire auth dict into the engine's submission. The
// account password doubles as the password-stage proof when the auth dict
// carries none of its own.
func (a *AuthData) Submission(accountPassword string) *uia.Submission {
	if a == nil {
		return nil
	}
	password := a.Password
	if password == "" {
		password = accountPassword
	}
	return &uia.Submission{
		Session:  a.Session,
		Type:     uia.StageType(a.Type),
		Password: password,
	}
}

// RegisterRequest is the parsed registration body. It is request-scoped and
// never persisted as-is.
type RegisterRequest struct {
	Username                 string    `json:"username,omitempty"`
	Password                 string    `json:"password,omitempty"`
	DeviceID                 string    `json:"device_id,omitempty"`
	InitialDeviceDisplayName string    `json:"initial_device_display_name,omitempty"`
	InhibitLogin             bool      `json:"inhibit_login,omitempty"`
	Auth                     *AuthData `json:"auth,omitempty"`
}

// RegisterResponse is the success body: the canonical user id plus, unless
// login was inhibited, the device binding and its access token.
type RegisterResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
}

// RegisterOutcome is the tagged result of a registration attempt: either the
// attempt succeeded, or more authentication is needed and Challenge tells the
// client what remains. An incomplete flow is a normal protocol state, not a
// failure.
type RegisterOutcome struct {
	Success   *RegisterResponse
	Challenge *uia.Challenge
	// StageError is set alongside Challenge when a submitted proof was
	// rejected in this round.
	StageError error
}

// AvailableResponse is the body for a successful availability probe.
type AvailableResponse struct {
	Available bool `json:"available"`
}
