package stepauth

import (
	"errors"
	"time"
)

// Config defines the stepauth runtime configuration.
//
// Config instances are intended to be populated before [Builder.Build]
// and then treated as immutable.
type Config struct {
	Session          SessionConfig
	Challenge        ChallengeConfig
	TOTP             TOTPConfig
	Code             CodeConfig
	SecurityQuestion SecurityQuestionConfig
	Audit            AuditConfig
	Metrics          MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session persistence and local token expiry
// inspection.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
	TokenLeeway time.Duration
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls pending login step-up challenges.
type ChallengeConfig struct {
	RedisPrefix string
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls the TOTP enrollment controller.
type TOTPConfig struct {
	// RefreshStatusOnEntry polls the remote for the current TOTP state
	// when the controller is created, so a stale local flag cannot
	// offer enrollment twice.
	RefreshStatusOnEntry bool
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeConfig controls email and SMS one-time code challenges.
type CodeConfig struct {
	// ResendInvalidatesPrior asks the remote to void any earlier code
	// when a new one is sent.
	ResendInvalidatesPrior bool
}

/*
====================================
SECURITY QUESTION CONFIG
====================================
*/

// SecurityQuestionConfig controls security question enrollment.
type SecurityQuestionConfig struct {
	SuggestedQuestions []string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultSuggestedQuestions() []string {
	return []string{
		"¿Cuál es el nombre de tu primera mascota?",
		"¿En qué ciudad naciste?",
		"¿Cuál es el nombre de soltera de tu madre?",
		"¿Cuál es tu comida favorita?",
		"¿Cuál fue el nombre de tu primera escuela?",
		"¿Cuál es tu película favorita?",
		"¿Cuál es el nombre de tu mejor amigo de la infancia?",
		"¿En qué calle vivías cuando eras niño?",
	}
}

// DefaultConfig returns the baseline configuration: thirty-day
// sessions under the "sa" prefix, three-minute challenges with five
// attempts, and audit plus metrics disabled. Adjust fields before
// passing it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "sa",
			TTL:         30 * 24 * time.Hour,
			TokenLeeway: 30 * time.Second,
		},
		Challenge: ChallengeConfig{
			RedisPrefix: "sac",
			TTL:         3 * time.Minute,
			MaxAttempts: 5,
		},
		TOTP: TOTPConfig{
			RefreshStatusOnEntry: true,
		},
		Code: CodeConfig{
			ResendInvalidatesPrior: true,
		},
		SecurityQuestion: SecurityQuestionConfig{
			SuggestedQuestions: defaultSuggestedQuestions(),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.SecurityQuestion.SuggestedQuestions = append(
		[]string(nil),
		cfg.SecurityQuestion.SuggestedQuestions...,
	)
	return out
}

// Validate checks the configuration for values that would make a flow
// misbehave at runtime.
func (c *Config) Validate() error {
	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.TokenLeeway < 0 {
		return errors.New("Session TokenLeeway must be >= 0")
	}

	// Challenge
	if c.Challenge.RedisPrefix == "" {
		return errors.New("Challenge RedisPrefix must not be empty")
	}
	if c.Challenge.RedisPrefix == c.Session.RedisPrefix {
		return errors.New("Challenge RedisPrefix must differ from Session RedisPrefix")
	}
	if c.Challenge.TTL <= 0 {
		return errors.New("Challenge TTL must be > 0")
	}
	if c.Challenge.MaxAttempts <= 0 {
		return errors.New("Challenge MaxAttempts must be > 0")
	}

	// Security question
	for _, q := range c.SecurityQuestion.SuggestedQuestions {
		if q == "" {
			return errors.New("SecurityQuestion SuggestedQuestions must not contain empty entries")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
