package stepauth

import (
	"context"
	"sync"

	"github.com/nvidela/stepauth/validate"
)

// TOTPState is the position of a [TOTPEnrollment] in its lifecycle.
type TOTPState uint8

const (
	// TOTPIntro offers enrollment; TOTP is not enabled.
	TOTPIntro TOTPState = iota
	// TOTPAwaitingVerification holds provisioning material until the
	// first valid code confirms the authenticator app.
	TOTPAwaitingVerification
	// TOTPEnabled marks an active TOTP factor.
	TOTPEnabled
)

// String returns the state's display label.
func (s TOTPState) String() string {
	switch s {
	case TOTPIntro:
		return "intro"
	case TOTPAwaitingVerification:
		return "awaiting_verification"
	case TOTPEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// TOTPEnrollment drives authenticator-app enrollment for the active
// session. The shared secret lives in this controller only between
// Begin and Verify; a completed or abandoned enrollment discards it.
type TOTPEnrollment struct {
	core *Core

	mu    sync.Mutex
	busy  bool
	state TOTPState
	setup *TotpSetup
}

// State returns the controller's current state.
func (e *TOTPEnrollment) State() TOTPState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Setup returns the provisioning material for display, or nil outside
// [TOTPAwaitingVerification].
func (e *TOTPEnrollment) Setup() *TotpSetup {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.setup == nil {
		return nil
	}
	out := *e.setup
	return &out
}

// Refresh polls the remote for the current TOTP state and realigns the
// controller. An enrollment in progress is not interrupted.
func (e *TOTPEnrollment) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.state == TOTPAwaitingVerification {
		e.mu.Unlock()
		return nil
	}
	e.busy = true
	e.mu.Unlock()

	status, err := e.core.authenticator.QueryTotpStatus(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	if err != nil {
		return e.core.remoteErr(err)
	}
	if status == nil {
		return e.core.remoteErr(errEmptyResponse)
	}

	e.core.metricInc(MetricTOTPStatusRefresh)
	if status.Enabled {
		e.state = TOTPEnabled
	} else {
		e.state = TOTPIntro
	}

	return e.core.updateProfile(ctx, func(p *VerificationProfile) {
		p.TOTPEnabled = status.Enabled
	})
}

// Begin asks the remote for provisioning material and moves to
// [TOTPAwaitingVerification]. Only legal from [TOTPIntro].
func (e *TOTPEnrollment) Begin(ctx context.Context) (*TotpSetup, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if e.state != TOTPIntro {
		e.mu.Unlock()
		return nil, ErrInvalidState
	}
	e.busy = true
	e.mu.Unlock()

	setup, err := e.core.authenticator.BeginTotpEnrollment(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	username := e.core.username()
	if err != nil {
		mapped := e.core.remoteErr(err)
		e.core.emitAudit(ctx, auditEventTOTPFailure, false, username, FactorTotp, mapped, nil)
		return nil, mapped
	}
	if setup == nil || setup.Secret == "" {
		return nil, e.core.remoteErr(errEmptyResponse)
	}

	held := *setup
	e.setup = &held
	e.state = TOTPAwaitingVerification

	e.core.metricInc(MetricTOTPEnrollStarted)
	e.core.emitAudit(ctx, auditEventTOTPEnrollStarted, true, username, FactorTotp, nil, nil)

	out := held
	return &out, nil
}

// Verify submits the first code from the authenticator app. Success
// enables the factor, updates the profile, and discards the
// provisioning material.
func (e *TOTPEnrollment) Verify(ctx context.Context, code string) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.state != TOTPAwaitingVerification {
		e.mu.Unlock()
		return ErrInvalidState
	}

	code = validate.CodeDigits(code)
	if res := validate.OneTimeCode(code); !res.Valid {
		e.mu.Unlock()
		return &ValidationError{Field: "code", Reason: res.Reason}
	}
	e.busy = true
	e.mu.Unlock()

	err := e.core.authenticator.VerifyTotpCode(ctx, code)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	username := e.core.username()
	if err != nil {
		mapped := e.core.remoteErr(err)
		e.core.emitAudit(ctx, auditEventTOTPFailure, false, username, FactorTotp, mapped, nil)
		return mapped
	}

	if err := e.core.updateProfile(ctx, func(p *VerificationProfile) {
		p.TOTPEnabled = true
	}); err != nil {
		return err
	}

	e.setup = nil
	e.state = TOTPEnabled
	e.core.metricInc(MetricTOTPEnabled)
	e.core.emitAudit(ctx, auditEventTOTPEnabled, true, username, FactorTotp, nil, nil)
	return nil
}

// Disable turns the factor off. The remote demands a current code, so
// losing the device means recovering through another factor.
func (e *TOTPEnrollment) Disable(ctx context.Context, code string) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.state != TOTPEnabled {
		e.mu.Unlock()
		return ErrInvalidState
	}

	code = validate.CodeDigits(code)
	if res := validate.OneTimeCode(code); !res.Valid {
		e.mu.Unlock()
		return &ValidationError{Field: "code", Reason: res.Reason}
	}
	e.busy = true
	e.mu.Unlock()

	err := e.core.authenticator.DisableTotp(ctx, code)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false

	username := e.core.username()
	if err != nil {
		mapped := e.core.remoteErr(err)
		e.core.emitAudit(ctx, auditEventTOTPFailure, false, username, FactorTotp, mapped, nil)
		return mapped
	}

	if err := e.core.updateProfile(ctx, func(p *VerificationProfile) {
		p.TOTPEnabled = false
	}); err != nil {
		return err
	}

	e.setup = nil
	e.state = TOTPIntro
	e.core.metricInc(MetricTOTPDisabled)
	e.core.emitAudit(ctx, auditEventTOTPDisabled, true, username, FactorTotp, nil, nil)
	return nil
}
