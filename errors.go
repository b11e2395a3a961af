package stepauth

import "errors"

var (
	// ErrCoreNotReady is returned when a flow is used before Build wired its dependencies.
	ErrCoreNotReady = errors.New("core not initialized")
	// ErrNotAuthenticated is returned when an operation requires an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBusy is returned when a submission races an in-flight remote call on the same flow.
	ErrBusy = errors.New("submission already in flight")
	// ErrInvalidState is returned when an operation is not legal in the flow's current state.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrTransport wraps remote call failures that carry no rejection reason.
	ErrTransport = errors.New("remote call failed")
	// ErrChallengeExpired is returned when a pending login challenge is gone or past its TTL.
	ErrChallengeExpired = errors.New("login challenge expired")
	// ErrChallengeAttempts is returned when a login challenge exceeds its failure budget.
	ErrChallengeAttempts = errors.New("login challenge attempts exceeded")
	// ErrFactorVerified is returned when a code is requested for an already verified channel.
	ErrFactorVerified = errors.New("factor already verified")
	// ErrQuestionConfigured is returned when a security question is already on file.
	ErrQuestionConfigured = errors.New("security question already configured")
	// ErrUnknownFactor is returned when the remote names a challenge factor this core does not implement.
	ErrUnknownFactor = errors.New("unknown challenge factor")
)
