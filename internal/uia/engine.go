package uia

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dErrors "hearth/pkg/domain-errors"
	"hearth/pkg/sentinel"
)

// Engine drives sessions through the configured flows. It is stateless apart
// from the SessionStore, so one engine serves all concurrent requests.
type Engine struct {
	store      SessionStore
	flows      []Flow
	validators map[StageType]StageValidator
	ttl        time.Duration
	logger     *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithStages registers additional stage validators beyond the defaults.
func WithStages(validators ...StageValidator) Option {
	return func(e *Engine) {
		for _, v := range validators {
			e.validators[v.Type()] = v
		}
	}
}

// NewEngine builds an engine over the given store and acceptable flows.
// Password and dummy validators are registered by default; flows may also
// name stages whose validators are registered via WithStages.
func NewEngine(store SessionStore, flows []Flow, ttl time.Duration, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("uia session store is required")
	}
	if len(flows) == 0 {
		return nil, fmt.Errorf("at least one acceptable flow is required")
	}
	for _, f := range flows {
		if len(f.Stages) == 0 {
			return nil, fmt.Errorf("flows must name at least one stage")
		}
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}

	e := &Engine{
		store: store,
		flows: flows,
		validators: map[StageType]StageValidator{
			StagePassword: PasswordStage{},
			StageDummy:    DummyStage{},
		},
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Flows returns the configured acceptable flows.
func (e *Engine) Flows() []Flow { return e.flows }

// Advance moves a registration attempt forward by one round.
//
// A nil submission, an empty session id, or an unknown/expired session id
// starts a fresh session. A submission carrying a stage proof is validated;
// proof failure leaves the session in progress and surfaces as
// Result.StageError alongside the retry challenge. Once the completed set
// satisfies any configured flow the session is destroyed and Completed is
// returned.
func (e *Engine) Advance(ctx context.Context, sub *Submission) (*Result, error) {
	session, err := e.resolveSession(ctx, sub)
	if err != nil {
		return nil, err
	}

	if sub != nil && sub.Type != "" {
		// Re-submitting an already-completed stage is an idempotent no-op.
		if !session.Has(sub.Type) {
			validator, ok := e.validators[sub.Type]
			if !ok {
				if e.inSomeFlow(sub.Type) {
					return nil, dErrors.New(dErrors.CodeNotSupported, fmt.Sprintf("auth stage %q is not supported", sub.Type))
				}
				return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown auth stage %q", sub.Type))
			}
			if stageErr := validator.Validate(ctx, sub); stageErr != nil {
				e.logger.DebugContext(ctx, "uia stage rejected",
					"session", session.ID, "stage", string(sub.Type))
				return &Result{
					Session:    session.ID,
					Challenge:  e.challenge(session),
					StageError: stageErr,
				}, nil
			}
			session, err = e.store.CompleteStage(ctx, session.ID, sub.Type)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record completed stage")
			}
		}
	}

	if e.satisfied(session) {
		if err := e.store.Delete(ctx, session.ID); err != nil {
			e.logger.WarnContext(ctx, "failed to delete completed uia session",
				"session", session.ID, "error", err)
		}
		return &Result{Completed: true, Session: session.ID}, nil
	}

	return &Result{Session: session.ID, Challenge: e.challenge(session)}, nil
}

func (e *Engine) resolveSession(ctx context.Context, sub *Submission) (*Session, error) {
	if sub != nil && sub.Session != "" {
		session, err := e.store.Get(ctx, sub.Session)
		switch {
		case err == nil:
			return session, nil
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrExpired):
			// Fall through to a fresh session: an expired attempt restarts
			// from NotStarted.
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load auth session")
		}
	}
	session, err := e.store.Create(ctx, e.ttl)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create auth session")
	}
	return session, nil
}

func (e *Engine) challenge(session *Session) *Challenge {
	return &Challenge{
		Session:   session.ID,
		Flows:     e.flows,
		Completed: session.Completed,
		Params:    map[string]any{},
	}
}

func (e *Engine) satisfied(session *Session) bool {
	for _, flow := range e.flows {
		done := true
		for _, stage := range flow.Stages {
			if !session.Has(stage) {
				done = false
				break
			}
		}
		if done {
			return true
		}
	}
	return false
}

func (e *Engine) inSomeFlow(stage StageType) bool {
	for _, flow := range e.flows {
		for _, s := range flow.Stages {
			if s == stage {
				return true
			}
		}
	}
	return false
}
