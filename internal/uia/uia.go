// Package uia implements the user-interactive authentication contract: a
// registration attempt must complete one of the server's acceptable flows of
// authentication stages before the account is created. The engine tracks
// per-attempt progress in a session keyed by an opaque id, validates stage
// proofs through pluggable validators, and reports either completion or the
// challenge the client must answer next.
package uia

import "context"

// StageType names an authentication stage in the wire vocabulary.
type StageType string

const (
	StagePassword  StageType = "m.login.password"
	StageDummy     StageType = "m.login.dummy"
	StageRecaptcha StageType = "m.login.recaptcha"
	StageEmail     StageType = "m.login.email.identity"
	StageTerms     StageType = "m.login.terms"
)

// Flow is one acceptable combination of stages. A session is complete once
// every stage of any single flow has been proven; order does not matter.
type Flow struct {
	Stages []StageType `json:"stages"`
}

// Submission carries the client's auth dict for one round: the session being
// continued (empty on the first call) and at most one stage proof.
type Submission struct {
	Session  string
	Type     StageType
	Password string
}

// Challenge describes what remains for an incomplete session. It renders
// directly as the protocol's 401 body.
type Challenge struct {
	Session   string         `json:"session"`
	Flows     []Flow         `json:"flows"`
	Completed []StageType    `json:"completed,omitempty"`
	Params    map[string]any `json:"params"`
}

// Result is the outcome of advancing a session by one round. Exactly one of
// Completed or Challenge is meaningful. StageError is set when a submitted
// proof failed validation; the session stays valid and the client retries
// against the same Challenge.
type Result struct {
	Completed  bool
	Session    string
	Challenge  *Challenge
	StageError error
}

// StageValidator checks one stage type's proof. Implementations must be safe
// for concurrent use.
type StageValidator interface {
	Type() StageType
	Validate(ctx context.Context, sub *Submission) error
}
