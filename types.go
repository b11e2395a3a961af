package stepauth

import (
	"context"

	"github.com/nvidela/stepauth/session"
	"github.com/nvidela/stepauth/validate"
)

// FactorKind identifies a verification factor. It is a closed set:
// consumers must switch over all values and treat anything else as
// [ErrUnknownFactor], never defaulting to a particular factor.
type FactorKind uint8

const (
	// FactorTotp is an authenticator-app time-based code.
	FactorTotp FactorKind = iota + 1
	// FactorEmail is a one-time code delivered by email.
	FactorEmail
	// FactorSMS is a one-time code delivered by text message.
	FactorSMS
	// FactorSecurityQuestion is a free-form recovery answer.
	FactorSecurityQuestion
)

// String returns the stable wire label for a factor.
func (k FactorKind) String() string {
	switch k {
	case FactorTotp:
		return "totp"
	case FactorEmail:
		return "email"
	case FactorSMS:
		return "sms"
	case FactorSecurityQuestion:
		return "security_question"
	default:
		return "unknown"
	}
}

// VerificationProfile is the set of completed-factor flags carried in
// the persisted session.
type VerificationProfile = session.Profile

// UserRecord is the identity the remote returns on successful login.
type UserRecord struct {
	ID       string
	Username string
	Name     string
	Surname  string
	Email    string
	Phone    string
}

// LoginRequest carries primary credentials to the remote. OTP is empty
// on the first submission and holds the challenge input when completing
// a step-up.
type LoginRequest struct {
	Username string
	Password string
	OTP      string
}

// StepUp describes a challenge the remote demands before it will issue
// a session. Factor is the only signal of what input to collect.
type StepUp struct {
	Factor FactorKind
	Prompt string
}

// LoginOutcome is the remote's answer to a primary login: either a
// session (Token, User, and the server-known Profile) or a step-up
// demand, never both.
type LoginOutcome struct {
	Token   string
	User    *UserRecord
	Profile VerificationProfile
	StepUp  *StepUp
}

// TotpSetup is the provisioning material returned when TOTP enrollment
// begins. It is held in memory only until verification completes.
type TotpSetup struct {
	Secret          string
	ProvisioningURI string
}

// TotpStatus reports whether TOTP is currently enabled for the user.
type TotpStatus struct {
	Enabled bool
}

// SendCodeRequest asks the remote to deliver a one-time code.
// InvalidatePrior tells it to void any code it issued earlier.
type SendCodeRequest struct {
	InvalidatePrior bool
}

// SecurityQuestionRequest configures the recovery question. The answer
// travels in clear; the remote owns hashing and storage.
type SecurityQuestionRequest struct {
	Question string
	Answer   string
}

// Authenticator is the remote side of every flow. Implementations wrap
// whatever transport the host application uses; stepauth only sees
// request and response values.
//
// Any returned error that is not a [*RejectionError] is treated as a
// transport failure and wrapped in [ErrTransport].
type Authenticator interface {
	PrimaryLogin(ctx context.Context, req LoginRequest) (*LoginOutcome, error)

	BeginTotpEnrollment(ctx context.Context) (*TotpSetup, error)
	VerifyTotpCode(ctx context.Context, code string) error
	DisableTotp(ctx context.Context, code string) error
	QueryTotpStatus(ctx context.Context) (*TotpStatus, error)

	SendEmailCode(ctx context.Context, req SendCodeRequest) error
	VerifyEmailCode(ctx context.Context, code string) error
	SendSmsCode(ctx context.Context, req SendCodeRequest) error
	VerifySmsCode(ctx context.Context, code string) error

	ConfigureSecurityQuestion(ctx context.Context, req SecurityQuestionRequest) error
}

// RejectionError is an explicit refusal from the remote. Reason is
// surfaced to the caller verbatim.
type RejectionError struct {
	Reason string
}

// Error returns the remote's refusal reason unchanged.
func (e *RejectionError) Error() string {
	return e.Reason
}

// ValidationError is a local field rejection. It is raised before any
// remote call and names the offending field and the rule it broke.
type ValidationError struct {
	Field  string
	Reason validate.Reason
}

// Error renders the field and reason code.
func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + string(e.Reason)
}
