// Package service implements the registration orchestrator: it composes the
// username validator, the advisory availability check, the interactive auth
// engine, the account provisioner, and the session issuer into the two
// operations the transport layer exposes.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"hearth/internal/platform/metrics"
	"hearth/internal/registration/models"
	"hearth/internal/storage"
	"hearth/internal/token"
	"hearth/internal/uia"
	dErrors "hearth/pkg/domain-errors"
)

// Config carries the registration policy knobs, passed in explicitly so
// tests can run services in parallel without ambient process state.
type Config struct {
	// ServerName is the domain half of every canonical user id.
	ServerName string
	// AllowGuests gates the guest registration path.
	AllowGuests bool
}

type Service struct {
	store   storage.Store
	engine  *uia.Engine
	tokens  *token.Manager
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store storage.Store, engine *uia.Engine, tokens *token.Manager, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("uia engine is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if cfg.ServerName == "" {
		return nil, fmt.Errorf("server name is required")
	}

	s := &Service{
		store:  store,
		engine: engine,
		tokens: tokens,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckAvailability reports whether the username could currently be
// registered. Grammar is checked before any storage round-trip. A nil return
// means available; the result is advisory and reserves nothing, so a later
// Register may still lose the race and fail with a collision.
func (s *Service) CheckAvailability(ctx context.Context, username string) error {
	s.metrics.IncAvailabilityChecks()

	localpart, err := models.MapLocalpart(username)
	if err != nil {
		return err
	}

	taken, err := s.store.UsernameExists(ctx, localpart)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check username availability")
	}
	if taken {
		return dErrors.New(dErrors.CodeConflict, "Desired user ID is already taken.")
	}
	return nil
}

// Register drives a registration attempt to completion or to the next auth
// challenge. Guest attempts skip validation and the auth flow entirely.
func (s *Service) Register(ctx context.Context, kind models.AccountKind, req *models.RegisterRequest) (*models.RegisterOutcome, error) {
	if req == nil {
		req = &models.RegisterRequest{}
	}

	switch kind {
	case models.KindGuest:
		return s.registerGuest(ctx, req)
	case models.KindUser:
		return s.registerUser(ctx, req)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown registration kind")
	}
}

func (s *Service) registerUser(ctx context.Context, req *models.RegisterRequest) (*models.RegisterOutcome, error) {
	// Validation runs before any persistence I/O; only then the advisory
	// availability probe. A taken name short-circuits the auth flow so the
	// client is not walked through stages for a doomed name.
	var localpart string
	if req.Username != "" {
		var err error
		localpart, err = models.MapLocalpart(req.Username)
		if err != nil {
			return nil, err
		}
		taken, err := s.store.UsernameExists(ctx, localpart)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check username availability")
		}
		if taken {
			return nil, dErrors.New(dErrors.CodeConflict, "Desired user ID is already taken.")
		}
	}

	result, err := s.engine.Advance(ctx, req.Auth.Submission(req.Password))
	if err != nil {
		return nil, err
	}
	if !result.Completed {
		if result.StageError != nil {
			s.metrics.IncUIAStage("rejected")
		} else {
			s.metrics.IncUIAStage("challenged")
		}
		return &models.RegisterOutcome{Challenge: result.Challenge, StageError: result.StageError}, nil
	}
	s.metrics.IncUIAStage("completed")

	if localpart == "" {
		// No username requested: the server picks one, same generator as
		// guests, so no availability probe is needed.
		localpart = generatedLocalpart()
	}

	userID, err := s.provisionUser(ctx, localpart, req.Password)
	if err != nil {
		return nil, err
	}

	s.metrics.IncRegistrations(string(models.KindUser))
	s.logger.InfoContext(ctx, "registered user account", "user_id", userID)

	return s.finishLogin(ctx, userID, req)
}

func (s *Service) registerGuest(ctx context.Context, req *models.RegisterRequest) (*models.RegisterOutcome, error) {
	if !s.cfg.AllowGuests {
		return nil, dErrors.New(dErrors.CodeForbidden, "Guest access is disabled")
	}

	// Every request field except the device display name is ignored for
	// guests; the server picks the identifier and the device.
	userID, err := s.provisionGuest(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.IncRegistrations(string(models.KindGuest))
	s.logger.InfoContext(ctx, "registered guest account", "user_id", userID)

	return s.finishLogin(ctx, userID, &models.RegisterRequest{
		InitialDeviceDisplayName: req.InitialDeviceDisplayName,
	})
}

func (s *Service) finishLogin(ctx context.Context, userID string, req *models.RegisterRequest) (*models.RegisterOutcome, error) {
	if req.InhibitLogin {
		return &models.RegisterOutcome{
			Success: &models.RegisterResponse{UserID: userID},
		}, nil
	}

	deviceID, accessToken, err := s.issueSession(ctx, userID, req.DeviceID, req.InitialDeviceDisplayName)
	if err != nil {
		return nil, err
	}
	return &models.RegisterOutcome{
		Success: &models.RegisterResponse{
			UserID:      userID,
			AccessToken: accessToken,
			DeviceID:    deviceID,
		},
	}, nil
}
