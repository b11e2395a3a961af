package stepauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess               = "login_success"
	auditEventLoginRejected              = "login_rejected"
	auditEventStepUpRequired             = "step_up_required"
	auditEventChallengeSuccess           = "challenge_success"
	auditEventChallengeFailure           = "challenge_failure"
	auditEventChallengeAttemptsExceeded  = "challenge_attempts_exceeded"
	auditEventChallengeCancelled         = "challenge_cancelled"
	auditEventTOTPEnrollStarted          = "totp_enroll_started"
	auditEventTOTPEnabled                = "totp_enabled"
	auditEventTOTPDisabled               = "totp_disabled"
	auditEventTOTPFailure                = "totp_failure"
	auditEventCodeSent                   = "code_sent"
	auditEventCodeVerified               = "code_verified"
	auditEventCodeRejected               = "code_rejected"
	auditEventQuestionConfigured         = "question_configured"
	auditEventQuestionRejected           = "question_rejected"
	auditEventSessionResumed             = "session_resumed"
	auditEventSessionExpired             = "session_expired"
	auditEventLogout                     = "logout"
)

// AuditErrorCode is a stable identifier for a failure class in audit
// events.
type AuditErrorCode string

const (
	auditErrRejected            AuditErrorCode = "remote_rejected"
	auditErrTransport           AuditErrorCode = "transport_failure"
	auditErrValidation          AuditErrorCode = "validation_failed"
	auditErrNotAuthenticated    AuditErrorCode = "not_authenticated"
	auditErrChallengeExpired    AuditErrorCode = "challenge_expired"
	auditErrChallengeAttempts   AuditErrorCode = "challenge_attempts_exceeded"
	auditErrFactorVerified      AuditErrorCode = "factor_already_verified"
	auditErrQuestionConfigured  AuditErrorCode = "question_already_configured"
	auditErrUnknownFactor       AuditErrorCode = "unknown_factor"
	auditErrStoreUnavailable    AuditErrorCode = "store_unavailable"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return auditErrRejected
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return auditErrValidation
	}

	switch {
	case errors.Is(err, ErrTransport):
		return auditErrTransport
	case errors.Is(err, ErrNotAuthenticated):
		return auditErrNotAuthenticated
	case errors.Is(err, ErrChallengeExpired):
		return auditErrChallengeExpired
	case errors.Is(err, ErrChallengeAttempts):
		return auditErrChallengeAttempts
	case errors.Is(err, ErrFactorVerified):
		return auditErrFactorVerified
	case errors.Is(err, ErrQuestionConfigured):
		return auditErrQuestionConfigured
	case errors.Is(err, ErrUnknownFactor):
		return auditErrUnknownFactor
	case errors.Is(err, errChallengeBackend):
		return auditErrStoreUnavailable
	default:
		return auditErrInternal
	}
}

func (c *Core) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	factor FactorKind,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Username:  username,
		Success:   success,
		Metadata:  metadata,
	}
	if factor != 0 {
		event.Factor = factor.String()
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}
