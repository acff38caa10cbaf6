package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"hearth/internal/registration/models"
	"hearth/internal/storage"
	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/requestcontext"
	"hearth/pkg/sentinel"
)

// provisionUser creates the account record for a full user. The localpart is
// re-validated here (defense in depth: the orchestrator validated it, but
// provisioning must hold on its own), and the insert is atomic: losing a race
// after a clean availability check surfaces as the same collision error the
// early check would have produced.
func (s *Service) provisionUser(ctx context.Context, localpart, password string) (string, error) {
	if err := models.ValidateLocalpart(localpart); err != nil {
		return "", err
	}

	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
	}

	userID := models.UserID(localpart, s.cfg.ServerName)
	err := s.store.InsertAccount(ctx, storage.Account{
		UserID:       userID,
		Localpart:    localpart,
		Kind:         storage.KindUser,
		PasswordHash: hash,
		CreatedAt:    requestcontext.Now(ctx),
	})
	if errors.Is(err, sentinel.ErrConflict) {
		return "", dErrors.Wrap(err, dErrors.CodeConflict, "Desired user ID is already taken.")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	return userID, nil
}

// provisionGuest creates a guest account under a server-generated localpart.
// Generation is collision-free by construction (random UUID within the
// localpart grammar), so no availability probe runs; a conflict here means
// the store is corrupt and is reported as such.
func (s *Service) provisionGuest(ctx context.Context) (string, error) {
	localpart := generatedLocalpart()
	userID := models.UserID(localpart, s.cfg.ServerName)
	err := s.store.InsertAccount(ctx, storage.Account{
		UserID:    userID,
		Localpart: localpart,
		Kind:      storage.KindGuest,
		CreatedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create guest account")
	}
	return userID, nil
}

// generatedLocalpart returns a fresh server-assigned localpart. UUID strings
// are lowercase hex plus hyphens, which sits inside the localpart grammar.
func generatedLocalpart() string {
	return uuid.NewString()
}
