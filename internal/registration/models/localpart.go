package models

import (
	"strings"

	dErrors "hearth/pkg/domain-errors"
)

// MaxLocalpartLength bounds the localpart so the full user id stays within
// the protocol's identifier limit.
const MaxLocalpartLength = 255

const localpartPunctuation = "._=-/"

// ValidateLocalpart checks a candidate localpart against the identifier
// grammar: non-empty, bounded length, and composed solely of lowercase ASCII
// letters, digits, and  . _ = - /  . Pure function, no I/O; callers run it
// before any storage lookup.
func ValidateLocalpart(candidate string) error {
	if candidate == "" || len(candidate) > MaxLocalpartLength {
		return invalidUsername()
	}
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case strings.ContainsRune(localpartPunctuation, r):
		default:
			return invalidUsername()
		}
	}
	return nil
}

// MapLocalpart derives the canonical localpart from a requested username.
// Policy: uppercase ASCII is folded to lowercase rather than rejected; any
// remaining grammar violation is the client's to fix. The policy is applied
// consistently everywhere a username enters the system.
func MapLocalpart(requested string) (string, error) {
	mapped := strings.ToLower(requested)
	if err := ValidateLocalpart(mapped); err != nil {
		return "", err
	}
	return mapped, nil
}

// UserID assembles the canonical user identifier from a localpart and the
// server's name.
func UserID(localpart, serverName string) string {
	return "@" + localpart + ":" + serverName
}

func invalidUsername() error {
	return dErrors.New(dErrors.CodeInvalidInput, "The desired username is not a valid user name.")
}
