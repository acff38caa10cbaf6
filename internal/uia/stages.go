package uia

import (
	"context"

	dErrors "hearth/pkg/domain-errors"
)

// DummyStage accepts any submission. It exists so a server can run a
// single-round flow while still exercising the session machinery.
type DummyStage struct{}

func (DummyStage) Type() StageType { return StageDummy }

func (DummyStage) Validate(_ context.Context, _ *Submission) error { return nil }

// PasswordStage enforces the server's credential policy on the password the
// account will be created with. Registration is establishing a credential,
// not checking one, so policy is the whole proof.
type PasswordStage struct {
	MinLength int
}

const defaultMinPasswordLength = 8

func (PasswordStage) Type() StageType { return StagePassword }

func (s PasswordStage) Validate(_ context.Context, sub *Submission) error {
	min := s.MinLength
	if min <= 0 {
		min = defaultMinPasswordLength
	}
	if sub == nil || sub.Password == "" {
		return dErrors.New(dErrors.CodeForbidden, "missing password")
	}
	if len(sub.Password) < min {
		return dErrors.New(dErrors.CodeForbidden, "password too short")
	}
	return nil
}
