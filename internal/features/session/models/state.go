package models

// Phase is the position in the session state machine.
type Phase string

const (
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseLoggedOut     Phase = "logged_out"
	PhaseLoggingIn     Phase = "logging_in"
	PhaseLoggedIn      Phase = "logged_in"
)

// State is a read-only snapshot of the session.
type State struct {
	Identity *Identity `json:"identity"`
	Loading  bool      `json:"loading"`
	SDKReady bool      `json:"sdk_ready"`
	// Bootstrapped is false until the persisted record has been read once.
	Bootstrapped bool `json:"-"`
}

// Phase derives the state machine position. SDKReady is an overlay and does
// not take part.
func (s State) Phase() Phase {
	switch {
	case !s.Bootstrapped:
		return PhaseBootstrapping
	case s.Loading:
		return PhaseLoggingIn
	case s.Identity != nil:
		return PhaseLoggedIn
	default:
		return PhaseLoggedOut
	}
}

// LoginResponse is the verification endpoint body.
type LoginResponse struct {
	Success bool      `json:"success"`
	User    *Identity `json:"user"`
}

// VerifyRequest is the body posted to the verification endpoint.
type VerifyRequest struct {
	AccessToken string `json:"accessToken"`
}
