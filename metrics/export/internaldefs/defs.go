package internaldefs

import (
	stepauth "github.com/nvidela/stepauth"
)

// CounterDef binds a counter's metric ID to its exported name and help
// text.
type CounterDef struct {
	ID   stepauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram's metric ID to its exported name and
// help text.
type HistogramDef struct {
	ID   stepauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed render order.
var CounterDefs = []CounterDef{
	{ID: stepauth.MetricLoginSuccess, Name: "stepauth_login_success_total", Help: "Primary logins that produced a session without step-up."},
	{ID: stepauth.MetricLoginRejected, Name: "stepauth_login_rejected_total", Help: "Primary logins refused by the remote."},
	{ID: stepauth.MetricStepUpRequired, Name: "stepauth_step_up_required_total", Help: "Primary logins answered with a second-factor challenge."},
	{ID: stepauth.MetricChallengeSuccess, Name: "stepauth_challenge_success_total", Help: "Step-up challenges completed."},
	{ID: stepauth.MetricChallengeFailure, Name: "stepauth_challenge_failure_total", Help: "Step-up answers refused by the remote."},
	{ID: stepauth.MetricChallengeAttemptsExceeded, Name: "stepauth_challenge_attempts_exceeded_total", Help: "Challenges aborted after spending their failure budget."},
	{ID: stepauth.MetricTOTPEnrollStarted, Name: "stepauth_totp_enroll_started_total", Help: "TOTP enrollments begun."},
	{ID: stepauth.MetricTOTPEnabled, Name: "stepauth_totp_enabled_total", Help: "TOTP enrollments completed."},
	{ID: stepauth.MetricTOTPDisabled, Name: "stepauth_totp_disabled_total", Help: "TOTP disable operations."},
	{ID: stepauth.MetricTOTPStatusRefresh, Name: "stepauth_totp_status_refresh_total", Help: "Remote TOTP status polls."},
	{ID: stepauth.MetricCodeSent, Name: "stepauth_code_sent_total", Help: "One-time codes requested over email or SMS."},
	{ID: stepauth.MetricCodeVerified, Name: "stepauth_code_verified_total", Help: "One-time codes accepted by the remote."},
	{ID: stepauth.MetricCodeRejected, Name: "stepauth_code_rejected_total", Help: "One-time codes refused by the remote."},
	{ID: stepauth.MetricQuestionConfigured, Name: "stepauth_question_configured_total", Help: "Security questions configured."},
	{ID: stepauth.MetricQuestionRejected, Name: "stepauth_question_rejected_total", Help: "Security question submissions refused by the remote."},
	{ID: stepauth.MetricSessionResumed, Name: "stepauth_session_resumed_total", Help: "Sessions restored from the store."},
	{ID: stepauth.MetricSessionCleared, Name: "stepauth_session_cleared_total", Help: "Sessions cleared by logout or expiry."},
	{ID: stepauth.MetricTransportFailure, Name: "stepauth_transport_failure_total", Help: "Remote calls that failed without a rejection."},
}

// HistogramDefs lists every exported histogram in a fixed render order.
var HistogramDefs = []HistogramDef{
	{ID: stepauth.MetricLoginLatency, Name: "stepauth_login_latency_seconds", Help: "Primary login round-trip latency histogram."},
}

// HistogramBounds holds the upper bucket bounds in seconds, as rendered
// in Prometheus le labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds the bound labels in a form legal inside an
// OTel instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
