package stepauth

import (
	"context"
	"sync"

	"github.com/nvidela/stepauth/internal/flows"
	"github.com/nvidela/stepauth/validate"
)

// CodeState is the position of a [CodeChallenge] in its lifecycle.
type CodeState uint8

const (
	// CodeIdle means no code has been requested yet.
	CodeIdle CodeState = iota
	// CodeSent means a code is on its way and may be submitted or resent.
	CodeSent
	// CodeVerified marks a completed channel; no further sends are accepted.
	CodeVerified
)

// String returns the state's display label.
func (s CodeState) String() string {
	switch s {
	case CodeIdle:
		return "idle"
	case CodeSent:
		return "sent"
	case CodeVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// CodeChallenge verifies an out-of-band channel (email or SMS) with a
// six-digit one-time code. One type serves both channels; the factor
// picks the remote operations and the profile flag.
type CodeChallenge struct {
	core    *Core
	channel FactorKind

	mu    sync.Mutex
	busy  bool
	state CodeState
}

// Channel returns which factor this controller verifies, [FactorEmail]
// or [FactorSMS].
func (c *CodeChallenge) Channel() FactorKind {
	return c.channel
}

// State returns the controller's current state.
func (c *CodeChallenge) State() CodeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send asks the remote to deliver a code. Calling it again before
// verification resends; the prior code is invalidated when configured.
// A verified channel refuses with [ErrFactorVerified].
func (c *CodeChallenge) Send(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()

	err := flows.RunSendCode(ctx, c.deps())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		return err
	}
	c.state = CodeSent
	return nil
}

// Verify submits a code. It is checked locally first; a short or
// non-numeric value is rejected without a remote call. Acceptance sets
// the channel's profile flag and finishes the controller.
func (c *CodeChallenge) Verify(ctx context.Context, code string) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state != CodeSent {
		c.mu.Unlock()
		if c.state == CodeVerified {
			return ErrFactorVerified
		}
		return ErrInvalidState
	}

	code = validate.CodeDigits(code)
	if res := validate.OneTimeCode(code); !res.Valid {
		c.mu.Unlock()
		return &ValidationError{Field: "code", Reason: res.Reason}
	}
	c.busy = true
	c.mu.Unlock()

	err := flows.RunVerifyCode(ctx, code, c.deps())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		return err
	}
	c.state = CodeVerified
	return nil
}

// Cancel returns a sent-but-unverified challenge to [CodeIdle]. The
// remote code simply lapses; nothing is transmitted.
func (c *CodeChallenge) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.busy {
		return ErrBusy
	}
	if c.state != CodeSent {
		return ErrInvalidState
	}
	c.state = CodeIdle
	return nil
}

func (c *CodeChallenge) deps() flows.CodeDeps {
	username := c.core.username()
	factor := c.channel

	deps := flows.CodeDeps{
		InvalidatePrior: c.core.config.Code.ResendInvalidatesPrior,
		Classify:        c.core.remoteErr,
		MetricInc: func(id int) {
			c.core.metricInc(MetricID(id))
		},
		EmitAudit: func(ctx context.Context, event string, success bool, err error) {
			c.core.emitAudit(ctx, event, success, username, factor, err, nil)
		},
		Metrics: flows.CodeMetrics{
			Sent:     int(MetricCodeSent),
			Verified: int(MetricCodeVerified),
			Rejected: int(MetricCodeRejected),
		},
		Events: flows.CodeEvents{
			Sent:     auditEventCodeSent,
			Verified: auditEventCodeVerified,
			Rejected: auditEventCodeRejected,
		},
		Errors: flows.CodeErrors{
			AlreadyVerified: ErrFactorVerified,
		},
	}

	switch factor {
	case FactorEmail:
		deps.Verified = func() bool { return c.core.Profile().EmailVerified }
		deps.SendCode = func(ctx context.Context, invalidate bool) error {
			return c.core.authenticator.SendEmailCode(ctx, SendCodeRequest{InvalidatePrior: invalidate})
		}
		deps.VerifyCode = c.core.authenticator.VerifyEmailCode
		deps.MarkVerified = func(ctx context.Context) error {
			return c.core.updateProfile(ctx, func(p *VerificationProfile) {
				p.EmailVerified = true
			})
		}
	case FactorSMS:
		deps.Verified = func() bool { return c.core.Profile().PhoneVerified }
		deps.SendCode = func(ctx context.Context, invalidate bool) error {
			return c.core.authenticator.SendSmsCode(ctx, SendCodeRequest{InvalidatePrior: invalidate})
		}
		deps.VerifyCode = c.core.authenticator.VerifySmsCode
		deps.MarkVerified = func(ctx context.Context) error {
			return c.core.updateProfile(ctx, func(p *VerificationProfile) {
				p.PhoneVerified = true
			})
		}
	}

	return deps
}
