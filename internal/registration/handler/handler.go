// Package handler is the thin HTTP layer over the registration service. It
// parses requests, delegates to the service, and renders protocol-shaped
// JSON; business logic stays out of this package.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hearth/internal/registration/models"
	"hearth/internal/uia"
	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/requestcontext"
)

// RegistrationService is the narrow service surface the handler consumes.
type RegistrationService interface {
	CheckAvailability(ctx context.Context, username string) error
	Register(ctx context.Context, kind models.AccountKind, req *models.RegisterRequest) (*models.RegisterOutcome, error)
}

type Handler struct {
	service RegistrationService
	logger  *slog.Logger
}

func New(service RegistrationService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes wires the registration endpoints onto a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestContext)
	r.Get("/_matrix/client/v3/register/available", h.handleAvailable)
	r.Post("/_matrix/client/v3/register", h.handleRegister)
	return r
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")

	if err := h.service.CheckAvailability(r.Context(), username); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AvailableResponse{Available: true})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseAccountKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "M_INVALID_PARAM", err.Error())
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "M_BAD_JSON", "malformed request body")
		return
	}

	outcome, err := h.service.Register(r.Context(), kind, &req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if outcome.Challenge != nil {
		h.writeChallenge(w, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome.Success)
}

// writeChallenge renders the 401 interactive-auth body. A rejected stage
// proof rides along as errcode/error fields; the client retries against the
// same session.
func (h *Handler) writeChallenge(w http.ResponseWriter, outcome *models.RegisterOutcome) {
	body := struct {
		*uia.Challenge
		Errcode string `json:"errcode,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Challenge: outcome.Challenge}

	if outcome.StageError != nil {
		body.Errcode = "M_FORBIDDEN"
		body.Error = outcome.StageError.Error()
	}
	writeJSON(w, http.StatusUnauthorized, body)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, errcode := protocolError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "registration request failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err)
		// Opaque to the client; details stay in the log.
		writeError(w, status, errcode, "internal server error")
		return
	}
	writeError(w, status, errcode, err.Error())
}

// protocolError maps domain error codes onto protocol statuses and errcodes.
// Invalid usernames and collisions are client errors; storage trouble is a
// server error.
func protocolError(err error) (int, string) {
	switch dErrors.GetCode(err) {
	case dErrors.CodeInvalidInput:
		return http.StatusBadRequest, "M_INVALID_USERNAME"
	case dErrors.CodeConflict:
		return http.StatusBadRequest, "M_USER_IN_USE"
	case dErrors.CodeForbidden:
		return http.StatusForbidden, "M_FORBIDDEN"
	case dErrors.CodeNotSupported:
		return http.StatusBadRequest, "M_UNRECOGNIZED"
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized, "M_UNKNOWN_TOKEN"
	default:
		return http.StatusInternalServerError, "M_UNKNOWN"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errcode, message string) {
	writeJSON(w, status, map[string]string{
		"errcode": errcode,
		"error":   message,
	})
}
