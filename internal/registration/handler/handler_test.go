package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"hearth/internal/registration/models"
	regservice "hearth/internal/registration/service"
	"hearth/internal/storage"
	"hearth/internal/storage/memory"
	"hearth/internal/token"
	"hearth/internal/uia"
	"hearth/pkg/testutil"
)

const (
	availablePath = "/_matrix/client/v3/register/available"
	registerPath  = "/_matrix/client/v3/register"
)

// The handler suite runs against the real service wired over the in-memory
// store, so it exercises the full parse-delegate-render path.
type RegistrationHandlerSuite struct {
	suite.Suite
	store  *memory.Store
	router http.Handler
}

func TestRegistrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistrationHandlerSuite))
}

func (s *RegistrationHandlerSuite) SetupTest() {
	s.store = memory.New()

	engine, err := uia.NewEngine(uia.NewInMemorySessionStore(),
		[]uia.Flow{{Stages: []uia.StageType{uia.StageDummy}}}, time.Minute)
	s.Require().NoError(err)

	svc, err := regservice.New(s.store, engine, token.NewManager("test-key", "hearth.test"),
		regservice.Config{ServerName: "hearth.test", AllowGuests: true})
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.router = New(svc, logger).Routes()
}

func (s *RegistrationHandlerSuite) seedAccount(localpart string) {
	s.Require().NoError(s.store.InsertAccount(context.Background(), storage.Account{
		UserID:    "@" + localpart + ":hearth.test",
		Localpart: localpart,
		Kind:      storage.KindUser,
		CreatedAt: time.Now(),
	}))
}

func (s *RegistrationHandlerSuite) TestAvailable() {
	s.Run("taken username is a client error", func() {
		s.seedAccount("taken")

		req := testutil.NewJSONRequest(s.T(), http.MethodGet, availablePath+"?username=taken", nil)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrcode(s.T(), rr, "M_USER_IN_USE")
	})

	s.Run("free username is available", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, availablePath+"?username=taken_nottaken", nil)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[models.AvailableResponse](s.T(), rr)
		s.True(body.Available)
	})

	s.Run("invalid username is a client error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, availablePath+"?username=t@ken", nil)
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrcode(s.T(), rr, "M_INVALID_USERNAME")
	})
}

func (s *RegistrationHandlerSuite) TestRegister() {
	s.Run("first round gets the auth challenge", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, registerPath,
			models.RegisterRequest{Username: "alice", Password: "correct horse battery"})
		rr := testutil.DoRequest(s.router, req)

		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
		body := testutil.UnmarshalResponse[uia.Challenge](s.T(), rr)
		s.NotEmpty(body.Session)
		s.NotEmpty(body.Flows)
	})

	s.Run("completing the flow registers and logs in", func() {
		first := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, registerPath,
			models.RegisterRequest{Username: "bob", Password: "correct horse battery"}))
		challenge := testutil.UnmarshalResponse[uia.Challenge](s.T(), first)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, registerPath,
			models.RegisterRequest{
				Username: "bob",
				Password: "correct horse battery",
				Auth: &models.AuthData{
					Session: challenge.Session,
					Type:    string(uia.StageDummy),
				},
			}))

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[models.RegisterResponse](s.T(), rr)
		s.Equal("@bob:hearth.test", body.UserID)
		s.NotEmpty(body.AccessToken)
		s.NotEmpty(body.DeviceID)
	})

	s.Run("guest registration bypasses the flow", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			registerPath+"?kind=guest", models.RegisterRequest{Username: "ignored"}))

		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		body := testutil.UnmarshalResponse[models.RegisterResponse](s.T(), rr)
		s.NotContains(body.UserID, "ignored")
		s.NotEmpty(body.AccessToken)
	})

	s.Run("guest registration accepts an empty body", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			registerPath+"?kind=guest", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("unknown kind is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			registerPath+"?kind=robot", models.RegisterRequest{}))

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrcode(s.T(), rr, "M_INVALID_PARAM")
	})

	s.Run("malformed body is rejected", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, registerPath, "not an object"))

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrcode(s.T(), rr, "M_BAD_JSON")
	})

	s.Run("taken username maps to user-in-use", func() {
		s.seedAccount("dup")
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, registerPath,
			models.RegisterRequest{Username: "dup"}))

		testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
		testutil.AssertErrcode(s.T(), rr, "M_USER_IN_USE")
	})
}
