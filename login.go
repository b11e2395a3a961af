package stepauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvidela/stepauth/validate"
)

// LoginState is the position of a [LoginFlow] in its lifecycle.
type LoginState uint8

const (
	// LoginCollecting accepts username and password edits.
	LoginCollecting LoginState = iota
	// LoginPending marks a primary submission in flight.
	LoginPending
	// LoginChallenged awaits the step-up input the remote demanded.
	LoginChallenged
	// LoginAuthenticated marks a completed login with an established session.
	LoginAuthenticated
)

// String returns the state's display label.
func (s LoginState) String() string {
	switch s {
	case LoginCollecting:
		return "collecting"
	case LoginPending:
		return "pending"
	case LoginChallenged:
		return "challenged"
	case LoginAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginFlow drives a single login attempt: credential collection,
// primary submission, and at most one step-up challenge. Credentials
// survive a rejected attempt so the user can correct one field; Cancel
// and an exhausted attempt budget wipe them.
type LoginFlow struct {
	core *Core

	mu             sync.Mutex
	state          LoginState
	busy           bool
	username       string
	password       string
	challenge      *StepUp
	challengeID    string
	challengeInput string
}

// State returns the flow's current state.
func (f *LoginFlow) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Challenge returns the pending step-up demand, or nil outside
// [LoginChallenged].
func (f *LoginFlow) Challenge() *StepUp {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		return nil
	}
	out := *f.challenge
	return &out
}

// SetUsername records the username. Ignored outside [LoginCollecting].
func (f *LoginFlow) SetUsername(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == LoginCollecting {
		f.username = strings.TrimSpace(s)
	}
}

// SetPassword records the password. Ignored outside [LoginCollecting].
func (f *LoginFlow) SetPassword(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == LoginCollecting {
		f.password = s
	}
}

// SetChallengeInput records the step-up input. Numeric factors keep
// only digits, capped at six; the security question keeps the raw
// answer. Ignored outside [LoginChallenged].
func (f *LoginFlow) SetChallengeInput(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != LoginChallenged || f.challenge == nil {
		return
	}

	switch f.challenge.Factor {
	case FactorTotp, FactorEmail, FactorSMS:
		f.challengeInput = validate.NormalizeCode(s)
	case FactorSecurityQuestion:
		f.challengeInput = s
	}
}

// ChallengeInput returns the recorded step-up input.
func (f *LoginFlow) ChallengeInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challengeInput
}

// CanSubmit reports whether the current state has everything it needs
// for Submit or SubmitChallenge.
func (f *LoginFlow) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return false
	}

	switch f.state {
	case LoginCollecting:
		return f.username != "" && f.password != ""
	case LoginChallenged:
		if f.challenge == nil {
			return false
		}
		switch f.challenge.Factor {
		case FactorTotp, FactorEmail, FactorSMS:
			return validate.OneTimeCode(f.challengeInput).Valid
		case FactorSecurityQuestion:
			return validate.ChallengeAnswer(f.challengeInput).Valid
		}
		return false
	default:
		return false
	}
}

// Submit sends the primary credentials. It returns the signed-in user
// on direct success, or (nil, nil) when the remote demanded a step-up;
// inspect State and Challenge in that case. A rejection keeps the
// credentials and returns the remote's reason verbatim.
func (f *LoginFlow) Submit(ctx context.Context) (*UserRecord, error) {
	f.mu.Lock()
	if f.core == nil || f.core.authenticator == nil {
		f.mu.Unlock()
		return nil, ErrCoreNotReady
	}
	if f.busy {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if f.state != LoginCollecting {
		f.mu.Unlock()
		return nil, ErrInvalidState
	}
	if f.username == "" {
		f.mu.Unlock()
		return nil, &ValidationError{Field: "username", Reason: validate.ReasonEmpty}
	}
	if f.password == "" {
		f.mu.Unlock()
		return nil, &ValidationError{Field: "password", Reason: validate.ReasonEmpty}
	}

	f.busy = true
	f.state = LoginPending
	username, password := f.username, f.password
	f.mu.Unlock()

	start := time.Now()
	outcome, err := f.core.authenticator.PrimaryLogin(ctx, LoginRequest{
		Username: username,
		Password: password,
	})
	f.core.metricObserve(MetricLoginLatency, time.Since(start))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false

	if err != nil {
		f.state = LoginCollecting
		mapped := f.core.remoteErr(err)
		var rejection *RejectionError
		if errors.As(mapped, &rejection) {
			f.core.metricInc(MetricLoginRejected)
			f.core.emitAudit(ctx, auditEventLoginRejected, false, username, 0, mapped, nil)
		}
		return nil, mapped
	}
	if outcome == nil {
		f.state = LoginCollecting
		return nil, f.core.remoteErr(errors.New("empty login outcome"))
	}

	if outcome.StepUp != nil {
		return nil, f.enterChallenge(ctx, username, outcome.StepUp)
	}

	if err := f.core.establishSession(ctx, outcome); err != nil {
		f.state = LoginCollecting
		return nil, err
	}

	f.state = LoginAuthenticated
	f.password = ""
	f.core.metricInc(MetricLoginSuccess)
	f.core.emitAudit(ctx, auditEventLoginSuccess, true, username, 0, nil, nil)
	return outcome.User, nil
}

// enterChallenge is called with f.mu held.
func (f *LoginFlow) enterChallenge(ctx context.Context, username string, stepUp *StepUp) error {
	switch stepUp.Factor {
	case FactorTotp, FactorEmail, FactorSMS, FactorSecurityQuestion:
	default:
		f.state = LoginCollecting
		f.core.emitAudit(ctx, auditEventStepUpRequired, false, username, stepUp.Factor, ErrUnknownFactor, nil)
		return ErrUnknownFactor
	}

	ttl := f.core.config.Challenge.TTL
	record := &loginChallenge{
		ID:        uuid.NewString(),
		Factor:    stepUp.Factor,
		Prompt:    stepUp.Prompt,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	created, err := f.core.challenges.Begin(ctx, username, record, ttl)
	if err != nil {
		f.state = LoginCollecting
		return err
	}
	if !created {
		existing, getErr := f.core.challenges.Get(ctx, username)
		switch {
		case getErr == nil:
			record = existing
		case errors.Is(getErr, errChallengeExpired) || errors.Is(getErr, errChallengeNotFound):
			if _, beginErr := f.core.challenges.Begin(ctx, username, record, ttl); beginErr != nil {
				f.state = LoginCollecting
				return beginErr
			}
		default:
			f.state = LoginCollecting
			return getErr
		}
	}

	challenge := *stepUp
	f.challenge = &challenge
	f.challengeID = record.ID
	f.challengeInput = ""
	f.state = LoginChallenged

	f.core.metricInc(MetricStepUpRequired)
	f.core.emitAudit(ctx, auditEventStepUpRequired, true, username, stepUp.Factor, nil, nil)
	return nil
}

// SubmitChallenge sends the recorded step-up input. The input is
// validated locally first; an invalid value never reaches the remote
// and never spends an attempt. A remote rejection spends one attempt
// and keeps the flow in [LoginChallenged] until the budget runs out.
func (f *LoginFlow) SubmitChallenge(ctx context.Context) (*UserRecord, error) {
	f.mu.Lock()
	if f.core == nil || f.core.authenticator == nil {
		f.mu.Unlock()
		return nil, ErrCoreNotReady
	}
	if f.busy {
		f.mu.Unlock()
		return nil, ErrBusy
	}
	if f.state != LoginChallenged || f.challenge == nil {
		f.mu.Unlock()
		return nil, ErrInvalidState
	}

	factor := f.challenge.Factor
	input := f.challengeInput
	switch factor {
	case FactorTotp, FactorEmail, FactorSMS:
		input = validate.CodeDigits(input)
		if res := validate.OneTimeCode(input); !res.Valid {
			f.mu.Unlock()
			return nil, &ValidationError{Field: "code", Reason: res.Reason}
		}
	case FactorSecurityQuestion:
		if res := validate.ChallengeAnswer(input); !res.Valid {
			f.mu.Unlock()
			return nil, &ValidationError{Field: "answer", Reason: res.Reason}
		}
		input = strings.TrimSpace(input)
	default:
		f.mu.Unlock()
		return nil, ErrUnknownFactor
	}

	f.busy = true
	username, password := f.username, f.password
	f.mu.Unlock()

	outcome, err := f.core.authenticator.PrimaryLogin(ctx, LoginRequest{
		Username: username,
		Password: password,
		OTP:      input,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false

	if err != nil {
		mapped := f.core.remoteErr(err)
		var rejection *RejectionError
		if !errors.As(mapped, &rejection) {
			// Transport failure: no attempt spent, state unchanged.
			return nil, mapped
		}
		return nil, f.recordChallengeFailure(ctx, username, factor, mapped)
	}
	if outcome == nil || outcome.Token == "" {
		return nil, f.core.remoteErr(errors.New("challenge outcome missing session"))
	}

	if _, err := f.core.challenges.Delete(ctx, username); err != nil {
		return nil, err
	}
	if err := f.core.establishSession(ctx, outcome); err != nil {
		return nil, err
	}

	f.state = LoginAuthenticated
	f.password = ""
	f.challenge = nil
	f.challengeID = ""
	f.challengeInput = ""
	f.core.metricInc(MetricChallengeSuccess)
	f.core.emitAudit(ctx, auditEventChallengeSuccess, true, username, factor, nil, nil)
	return outcome.User, nil
}

// recordChallengeFailure is called with f.mu held.
func (f *LoginFlow) recordChallengeFailure(
	ctx context.Context,
	username string,
	factor FactorKind,
	cause error,
) error {
	exceeded, recErr := f.core.challenges.RecordFailure(ctx, username, f.core.config.Challenge.MaxAttempts)
	if recErr != nil {
		if errors.Is(recErr, errChallengeExpired) || errors.Is(recErr, errChallengeNotFound) {
			f.abandonChallenge()
			f.core.emitAudit(ctx, auditEventChallengeFailure, false, username, factor, ErrChallengeExpired, nil)
			return ErrChallengeExpired
		}
		return recErr
	}

	if exceeded {
		f.abandonChallenge()
		f.password = ""
		f.core.metricInc(MetricChallengeAttemptsExceeded)
		f.core.emitAudit(ctx, auditEventChallengeAttemptsExceeded, false, username, factor, ErrChallengeAttempts, nil)
		return ErrChallengeAttempts
	}

	f.core.metricInc(MetricChallengeFailure)
	f.core.emitAudit(ctx, auditEventChallengeFailure, false, username, factor, cause, nil)
	return cause
}

// abandonChallenge is called with f.mu held.
func (f *LoginFlow) abandonChallenge() {
	f.challenge = nil
	f.challengeID = ""
	f.challengeInput = ""
	f.state = LoginCollecting
}

// Cancel abandons the attempt: the step-up input, the pending challenge
// record, and both credentials are cleared and the flow returns to
// [LoginCollecting].
func (f *LoginFlow) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy {
		return ErrBusy
	}

	switch f.state {
	case LoginCollecting:
		f.username = ""
		f.password = ""
		return nil
	case LoginChallenged:
		username := f.username
		factor := FactorKind(0)
		if f.challenge != nil {
			factor = f.challenge.Factor
		}
		f.abandonChallenge()
		f.username = ""
		f.password = ""
		if _, err := f.core.challenges.Delete(ctx, username); err != nil {
			return err
		}
		f.core.emitAudit(ctx, auditEventChallengeCancelled, true, username, factor, nil, nil)
		return nil
	default:
		return ErrInvalidState
	}
}
