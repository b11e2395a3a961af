package flows

import "context"

// CodeMetrics carries the metric IDs a code challenge increments.
type CodeMetrics struct {
	Sent     int
	Verified int
	Rejected int
}

// CodeEvents carries the audit event names a code challenge emits.
type CodeEvents struct {
	Sent     string
	Verified string
	Rejected string
}

// CodeErrors carries the sentinel errors a code challenge returns. The
// root package supplies its own values so this package stays free of
// error identity.
type CodeErrors struct {
	AlreadyVerified error
}

// CodeDeps wires a one-time code flow. Both the email and the SMS
// channels run through the same transitions with different function
// values plugged in.
type CodeDeps struct {
	InvalidatePrior bool

	Verified     func() bool
	SendCode     func(context.Context, bool) error
	VerifyCode   func(context.Context, string) error
	MarkVerified func(context.Context) error
	Classify     func(error) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, err error)

	Metrics CodeMetrics
	Events  CodeEvents
	Errors  CodeErrors
}

func normalizeCodeDeps(deps *CodeDeps) {
	if deps.Verified == nil {
		deps.Verified = func() bool { return false }
	}
	if deps.Classify == nil {
		deps.Classify = func(err error) error { return err }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, error) {}
	}
}

// RunSendCode asks the remote to deliver a code. A verified channel
// refuses the send; a resend carries the invalidate-prior flag so only
// the newest code stays valid.
func RunSendCode(ctx context.Context, deps CodeDeps) error {
	normalizeCodeDeps(&deps)

	if deps.Verified() {
		deps.EmitAudit(ctx, deps.Events.Rejected, false, deps.Errors.AlreadyVerified)
		return deps.Errors.AlreadyVerified
	}

	if err := deps.SendCode(ctx, deps.InvalidatePrior); err != nil {
		mapped := deps.Classify(err)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, mapped)
		return mapped
	}

	deps.MetricInc(deps.Metrics.Sent)
	deps.EmitAudit(ctx, deps.Events.Sent, true, nil)
	return nil
}

// RunVerifyCode submits a locally validated code to the remote and, on
// acceptance, marks the channel verified.
func RunVerifyCode(ctx context.Context, code string, deps CodeDeps) error {
	normalizeCodeDeps(&deps)

	if deps.Verified() {
		deps.EmitAudit(ctx, deps.Events.Rejected, false, deps.Errors.AlreadyVerified)
		return deps.Errors.AlreadyVerified
	}

	if err := deps.VerifyCode(ctx, code); err != nil {
		mapped := deps.Classify(err)
		deps.MetricInc(deps.Metrics.Rejected)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, mapped)
		return mapped
	}

	if err := deps.MarkVerified(ctx); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.Verified)
	deps.EmitAudit(ctx, deps.Events.Verified, true, nil)
	return nil
}
