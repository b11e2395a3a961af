package stepauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nvidela/stepauth/session"
)

// Core owns the authenticated session and hands out flow controllers.
// It is the single reader and writer of the persisted session record:
// loaded in [Core.Resume], saved after each successful mutation, and
// cleared on logout or local expiry.
type Core struct {
	config        Config
	authenticator Authenticator
	sessions      *session.Store
	challenges    *loginChallengeStore
	audit         *auditDispatcher
	metrics       *Metrics

	mu      sync.RWMutex
	current *session.Session
}

// Close stops the audit dispatcher. The core must not be used after
// Close returns.
func (c *Core) Close() {
	if c == nil {
		return
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded under
// backpressure.
func (c *Core) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (c *Core) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Core) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Core) metricObserve(id MetricID, d time.Duration) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Observe(id, d)
}

// Resume restores the persisted session, if any. A stored token whose
// exp claim has passed clears the record and reports
// [ErrNotAuthenticated]; opaque tokens are accepted as-is.
func (c *Core) Resume(ctx context.Context) (*UserRecord, error) {
	if c == nil || c.sessions == nil {
		return nil, ErrCoreNotReady
	}

	sess, err := c.sessions.Load(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}

	if session.TokenExpired(sess.Token, time.Now(), c.config.Session.TokenLeeway) {
		if clearErr := c.sessions.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		c.metricInc(MetricSessionCleared)
		c.emitAudit(ctx, auditEventSessionExpired, false, sess.Username, 0, ErrNotAuthenticated, nil)
		return nil, ErrNotAuthenticated
	}

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	c.metricInc(MetricSessionResumed)
	c.emitAudit(ctx, auditEventSessionResumed, true, sess.Username, 0, nil, nil)
	return userFromSession(sess), nil
}

// CurrentUser returns the signed-in identity, or nil when no session is
// active.
func (c *Core) CurrentUser() *UserRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	return userFromSession(c.current)
}

// Token returns the remote-issued session token, or "" when no session
// is active.
func (c *Core) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.Token
}

// Profile returns the verification profile of the active session. The
// zero profile is returned when no session is active.
func (c *Core) Profile() VerificationProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return VerificationProfile{}
	}
	return c.current.Profile
}

// Logout clears the in-memory session and the persisted record.
func (c *Core) Logout(ctx context.Context) error {
	if c == nil || c.sessions == nil {
		return ErrCoreNotReady
	}

	c.mu.Lock()
	var username string
	if c.current != nil {
		username = c.current.Username
	}
	c.current = nil
	c.mu.Unlock()

	if err := c.sessions.Clear(ctx); err != nil {
		return err
	}

	c.metricInc(MetricSessionCleared)
	c.emitAudit(ctx, auditEventLogout, true, username, 0, nil, nil)
	return nil
}

// Login creates a fresh login flow. Any number of flows may exist, but
// the challenge store admits one pending step-up per username.
func (c *Core) Login() *LoginFlow {
	return &LoginFlow{core: c, state: LoginCollecting}
}

// TOTPEnrollment creates the TOTP enrollment controller for the active
// session. With [TOTPConfig].RefreshStatusOnEntry set, the remote is
// polled so a stale local flag cannot misplace the controller.
func (c *Core) TOTPEnrollment(ctx context.Context) (*TOTPEnrollment, error) {
	sess, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	state := TOTPIntro
	if sess.Profile.TOTPEnabled {
		state = TOTPEnabled
	}
	e := &TOTPEnrollment{core: c, state: state}

	if c.config.TOTP.RefreshStatusOnEntry {
		// A failed poll leaves the profile-derived state in place.
		_ = e.Refresh(ctx)
	}
	return e, nil
}

// EmailCode creates the one-time code controller for the email channel.
func (c *Core) EmailCode() (*CodeChallenge, error) {
	return c.codeChallenge(FactorEmail)
}

// SMSCode creates the one-time code controller for the SMS channel.
func (c *Core) SMSCode() (*CodeChallenge, error) {
	return c.codeChallenge(FactorSMS)
}

func (c *Core) codeChallenge(channel FactorKind) (*CodeChallenge, error) {
	sess, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	state := CodeIdle
	switch channel {
	case FactorEmail:
		if sess.Profile.EmailVerified {
			state = CodeVerified
		}
	case FactorSMS:
		if sess.Profile.PhoneVerified {
			state = CodeVerified
		}
	}
	return &CodeChallenge{core: c, channel: channel, state: state}, nil
}

// SecurityQuestion creates the security question enrollment controller
// for the active session.
func (c *Core) SecurityQuestion() (*SecurityQuestionEnrollment, error) {
	sess, err := c.requireSession()
	if err != nil {
		return nil, err
	}

	state := QuestionComposing
	if sess.Profile.HasSecurityQuestion {
		state = QuestionSubmitted
	}
	return &SecurityQuestionEnrollment{core: c, state: state}, nil
}

// SuggestedQuestions returns the configured security question prompts.
func (c *Core) SuggestedQuestions() []string {
	out := make([]string, len(c.config.SecurityQuestion.SuggestedQuestions))
	copy(out, c.config.SecurityQuestion.SuggestedQuestions)
	return out
}

var errEmptyResponse = errors.New("empty remote response")

func (c *Core) username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.Username
}

func (c *Core) requireSession() (session.Session, error) {
	if c == nil || c.authenticator == nil {
		return session.Session{}, ErrCoreNotReady
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return session.Session{}, ErrNotAuthenticated
	}
	return *c.current, nil
}

func (c *Core) establishSession(ctx context.Context, outcome *LoginOutcome) error {
	sess := &session.Session{
		Token:     outcome.Token,
		Profile:   outcome.Profile,
		CreatedAt: time.Now().Unix(),
	}
	if outcome.User != nil {
		sess.UserID = outcome.User.ID
		sess.Username = outcome.User.Username
		sess.Name = outcome.User.Name
		sess.Surname = outcome.User.Surname
		sess.Email = outcome.User.Email
		sess.Phone = outcome.User.Phone
	}

	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	return nil
}

// updateProfile applies mutate to a copy of the active session's
// profile and persists it. The in-memory session only advances when the
// save succeeds.
func (c *Core) updateProfile(ctx context.Context, mutate func(*VerificationProfile)) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	updated := *c.current
	c.mu.Unlock()

	mutate(&updated.Profile)

	if err := c.sessions.Save(ctx, &updated); err != nil {
		return err
	}

	c.mu.Lock()
	c.current = &updated
	c.mu.Unlock()
	return nil
}

// remoteErr classifies an authenticator error: rejections and context
// cancellations pass through untouched, everything else becomes a
// transport failure.
func (c *Core) remoteErr(err error) error {
	if err == nil {
		return nil
	}

	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	c.metricInc(MetricTransportFailure)
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func userFromSession(s *session.Session) *UserRecord {
	return &UserRecord{
		ID:       s.UserID,
		Username: s.Username,
		Name:     s.Name,
		Surname:  s.Surname,
		Email:    s.Email,
		Phone:    s.Phone,
	}
}
