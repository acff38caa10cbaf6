package service

import (
	"context"

	"github.com/google/uuid"

	"hearth/internal/device"
	"hearth/internal/storage"
	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/requestcontext"
)

// issueSession binds the account to a device and mints its access token. A
// missing device id gets a fresh server-generated one. The store replaces any
// token previously bound to this (account, device) atomically, so the old
// token is dead the moment the new one exists.
func (s *Service) issueSession(ctx context.Context, userID, deviceID, displayName string) (string, string, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	now := requestcontext.Now(ctx)
	value, err := s.tokens.Mint(userID, deviceID, now)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint access token")
	}

	err = s.store.InsertOrReplaceDeviceToken(ctx,
		storage.Device{
			ID:          deviceID,
			UserID:      userID,
			DisplayName: device.DisplayName(displayName, requestcontext.UserAgent(ctx)),
		},
		storage.AccessToken{
			Token:    value,
			UserID:   userID,
			DeviceID: deviceID,
			IssuedAt: now,
		},
	)
	if err != nil {
		return "", "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store device token")
	}
	return deviceID, value, nil
}
