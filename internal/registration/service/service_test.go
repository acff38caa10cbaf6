package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"hearth/internal/registration/models"
	"hearth/internal/storage"
	"hearth/internal/storage/memory"
	"hearth/internal/token"
	"hearth/internal/uia"
	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/requestcontext"
	"hearth/pkg/sentinel"
)

// scriptedStore is a scriptable storage fake: tests preload responses and
// inspect which calls were made.
type scriptedStore struct {
	exists      map[string]bool
	existsErr   error
	existsCalls int

	insertErr     error
	inserted      []storage.Account
	tokenInsertErr error
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{exists: make(map[string]bool)}
}

func (f *scriptedStore) UsernameExists(_ context.Context, localpart string) (bool, error) {
	f.existsCalls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.exists[localpart], nil
}

func (f *scriptedStore) InsertAccount(_ context.Context, account storage.Account) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, account)
	return nil
}

func (f *scriptedStore) InsertOrReplaceDeviceToken(_ context.Context, _ storage.Device, _ storage.AccessToken) error {
	return f.tokenInsertErr
}

func (f *scriptedStore) TokenByValue(_ context.Context, _ string) (*storage.AccessToken, error) {
	return nil, sentinel.ErrNotFound
}

type RegistrationServiceSuite struct {
	suite.Suite
	ctx context.Context
}

func TestRegistrationServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistrationServiceSuite))
}

func (s *RegistrationServiceSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *RegistrationServiceSuite) newService(store storage.Store, flows ...uia.Flow) *Service {
	if len(flows) == 0 {
		flows = []uia.Flow{{Stages: []uia.StageType{uia.StageDummy}}}
	}
	engine, err := uia.NewEngine(uia.NewInMemorySessionStore(), flows, time.Minute)
	s.Require().NoError(err)

	svc, err := New(store, engine, token.NewManager("test-key", "hearth.test"), Config{
		ServerName:  "hearth.test",
		AllowGuests: true,
	})
	s.Require().NoError(err)
	return svc
}

// register completes the interactive flow for a request in at most two
// rounds: the initial challenge, then the dummy stage proof.
func (s *RegistrationServiceSuite) register(svc *Service, kind models.AccountKind, req *models.RegisterRequest) *models.RegisterOutcome {
	outcome, err := svc.Register(s.ctx, kind, req)
	s.Require().NoError(err)
	if kind == models.KindUser && outcome.Challenge != nil {
		req.Auth = &models.AuthData{
			Session: outcome.Challenge.Session,
			Type:    string(uia.StageDummy),
		}
		outcome, err = svc.Register(s.ctx, kind, req)
		s.Require().NoError(err)
	}
	return outcome
}

func (s *RegistrationServiceSuite) TestCheckAvailability() {
	s.Run("taken username reports conflict", func() {
		store := newScriptedStore()
		store.exists["taken"] = true
		svc := s.newService(store)

		err := svc.CheckAvailability(s.ctx, "taken")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("free username is available", func() {
		svc := s.newService(newScriptedStore())
		s.NoError(svc.CheckAvailability(s.ctx, "taken_nottaken"))
	})

	s.Run("invalid username fails before any storage call", func() {
		store := newScriptedStore()
		svc := s.newService(store)

		err := svc.CheckAvailability(s.ctx, "t@ken")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Zero(store.existsCalls)
	})

	s.Run("availability probe has no side effects", func() {
		store := memory.New()
		svc := s.newService(store)

		s.Require().NoError(svc.CheckAvailability(s.ctx, "probe"))
		_, found := store.AccountByLocalpart("probe")
		s.False(found)
	})

	s.Run("storage failure is surfaced as internal, not available", func() {
		store := newScriptedStore()
		store.existsErr = sentinel.ErrUnavailable
		svc := s.newService(store)

		err := svc.CheckAvailability(s.ctx, "anyone")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *RegistrationServiceSuite) TestRegisterUser() {
	s.Run("first round returns the auth challenge", func() {
		svc := s.newService(memory.New())

		outcome, err := svc.Register(s.ctx, models.KindUser, &models.RegisterRequest{Username: "alice"})
		s.Require().NoError(err)
		s.Nil(outcome.Success)
		s.Require().NotNil(outcome.Challenge)
		s.NotEmpty(outcome.Challenge.Session)
	})

	s.Run("completed flow provisions account and issues session", func() {
		store := memory.New()
		svc := s.newService(store)

		outcome := s.register(svc, models.KindUser, &models.RegisterRequest{
			Username: "alice",
			Password: "correct horse battery",
		})
		s.Require().NotNil(outcome.Success)
		s.Equal("@alice:hearth.test", outcome.Success.UserID)
		s.NotEmpty(outcome.Success.DeviceID)
		s.NotEmpty(outcome.Success.AccessToken)

		account, found := store.AccountByLocalpart("alice")
		s.Require().True(found)
		s.Equal(storage.KindUser, account.Kind)
		s.NoError(bcrypt.CompareHashAndPassword(account.PasswordHash, []byte("correct horse battery")))

		tok, err := store.TokenByValue(s.ctx, outcome.Success.AccessToken)
		s.Require().NoError(err)
		s.Equal(outcome.Success.DeviceID, tok.DeviceID)
	})

	s.Run("uppercase username is folded to lowercase", func() {
		svc := s.newService(memory.New())
		outcome := s.register(svc, models.KindUser, &models.RegisterRequest{Username: "Alice"})
		s.Require().NotNil(outcome.Success)
		s.Equal("@alice:hearth.test", outcome.Success.UserID)
	})

	s.Run("invalid username fails before auth flow or storage", func() {
		store := newScriptedStore()
		svc := s.newService(store)

		_, err := svc.Register(s.ctx, models.KindUser, &models.RegisterRequest{Username: "t@ken"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Zero(store.existsCalls)
	})

	s.Run("taken username short-circuits before the auth flow", func() {
		store := newScriptedStore()
		store.exists["taken"] = true
		svc := s.newService(store)

		_, err := svc.Register(s.ctx, models.KindUser, &models.RegisterRequest{Username: "taken"})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("commit-time collision surfaces like the advisory check", func() {
		// Availability says free, but the atomic insert loses the race.
		store := newScriptedStore()
		store.insertErr = sentinel.ErrConflict
		svc := s.newService(store)

		req := &models.RegisterRequest{Username: "sniped"}
		outcome, err := svc.Register(s.ctx, models.KindUser, req)
		s.Require().NoError(err)
		req.Auth = &models.AuthData{Session: outcome.Challenge.Session, Type: string(uia.StageDummy)}

		_, err = svc.Register(s.ctx, models.KindUser, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejected stage proof is not a terminal failure", func() {
		svc := s.newService(memory.New(), uia.Flow{Stages: []uia.StageType{uia.StagePassword}})

		first, err := svc.Register(s.ctx, models.KindUser, &models.RegisterRequest{Username: "bob"})
		s.Require().NoError(err)

		outcome, err := svc.Register(s.ctx, models.KindUser, &models.RegisterRequest{
			Username: "bob",
			Password: "short",
			Auth: &models.AuthData{
				Session: first.Challenge.Session,
				Type:    string(uia.StagePassword),
			},
		})
		s.Require().NoError(err)
		s.Nil(outcome.Success)
		s.Require().NotNil(outcome.Challenge)
		s.Error(outcome.StageError)
		s.Equal(first.Challenge.Session, outcome.Challenge.Session)
	})

	s.Run("absent username gets a server-generated identifier", func() {
		store := memory.New()
		svc := s.newService(store)

		outcome := s.register(svc, models.KindUser, &models.RegisterRequest{})
		s.Require().NotNil(outcome.Success)
		s.Regexp(`^@[a-z0-9./_=-]+:hearth\.test$`, outcome.Success.UserID)
	})

	s.Run("inhibit_login skips the session issuer", func() {
		store := memory.New()
		svc := s.newService(store)

		outcome := s.register(svc, models.KindUser, &models.RegisterRequest{
			Username:     "quiet",
			InhibitLogin: true,
		})
		s.Require().NotNil(outcome.Success)
		s.Equal("@quiet:hearth.test", outcome.Success.UserID)
		s.Empty(outcome.Success.AccessToken)
		s.Empty(outcome.Success.DeviceID)
	})
}

func (s *RegistrationServiceSuite) TestRegisterGuest() {
	s.Run("guest ignores every field except display name", func() {
		store := newScriptedStore()
		svc := s.newService(store)

		outcome, err := svc.Register(s.ctx, models.KindGuest, &models.RegisterRequest{
			Username: "ignored_name",
			Password: "ignored_password",
			DeviceID: "IGNORED",
			Auth:     &models.AuthData{Type: "x.bogus"},
		})
		s.Require().NoError(err)
		s.Require().NotNil(outcome.Success)
		s.NotContains(outcome.Success.UserID, "ignored_name")
		s.NotEqual("IGNORED", outcome.Success.DeviceID)
		// Guests never consult the availability checker.
		s.Zero(store.existsCalls)
	})

	s.Run("two guests with identical requests get distinct valid ids", func() {
		svc := s.newService(memory.New())
		req := func() *models.RegisterRequest {
			return &models.RegisterRequest{Username: "wanted"}
		}

		a, err := svc.Register(s.ctx, models.KindGuest, req())
		s.Require().NoError(err)
		b, err := svc.Register(s.ctx, models.KindGuest, req())
		s.Require().NoError(err)

		s.NotEqual(a.Success.UserID, b.Success.UserID)
		for _, out := range []*models.RegisterOutcome{a, b} {
			s.Regexp(`^@[a-z0-9./_=-]+:hearth\.test$`, out.Success.UserID)
			s.NotContains(out.Success.UserID, "wanted")
		}
	})

	s.Run("guest accounts persist with guest kind", func() {
		store := memory.New()
		svc := s.newService(store)

		outcome, err := svc.Register(s.ctx, models.KindGuest, &models.RegisterRequest{})
		s.Require().NoError(err)
		s.Require().NotNil(outcome.Success)
		s.NotEmpty(outcome.Success.AccessToken)
	})

	s.Run("disabled guest access is forbidden", func() {
		engine, err := uia.NewEngine(uia.NewInMemorySessionStore(),
			[]uia.Flow{{Stages: []uia.StageType{uia.StageDummy}}}, time.Minute)
		s.Require().NoError(err)
		svc, err := New(memory.New(), engine, token.NewManager("k", "hearth.test"), Config{
			ServerName:  "hearth.test",
			AllowGuests: false,
		})
		s.Require().NoError(err)

		_, err = svc.Register(s.ctx, models.KindGuest, &models.RegisterRequest{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RegistrationServiceSuite) TestSessionIssuer() {
	s.Run("client-supplied device id is honored", func() {
		store := memory.New()
		svc := s.newService(store)

		outcome := s.register(svc, models.KindUser, &models.RegisterRequest{
			Username: "carol",
			DeviceID: "MYDEVICE",
		})
		s.Require().NotNil(outcome.Success)
		s.Equal("MYDEVICE", outcome.Success.DeviceID)
	})

	s.Run("reissuing for the same device invalidates the prior token", func() {
		store := memory.New()
		svc := s.newService(store)

		deviceID, first, err := svc.issueSession(s.ctx, "@dave:hearth.test", "", "")
		s.Require().NoError(err)
		_, second, err := svc.issueSession(s.ctx, "@dave:hearth.test", deviceID, "")
		s.Require().NoError(err)

		_, err = store.TokenByValue(s.ctx, first)
		s.ErrorIs(err, sentinel.ErrNotFound)
		tok, err := store.TokenByValue(s.ctx, second)
		s.Require().NoError(err)
		s.Equal(deviceID, tok.DeviceID)
	})

	s.Run("display name falls back to the request user agent", func() {
		store := memory.New()
		svc := s.newService(store)
		ctx := requestcontext.WithUserAgent(s.ctx,
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

		_, _, err := svc.issueSession(ctx, "@erin:hearth.test", "", "")
		s.Require().NoError(err)
	})
}
