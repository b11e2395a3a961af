package stepauth

import (
	"context"
	"strings"
	"sync"

	"github.com/nvidela/stepauth/validate"
)

// QuestionState is the position of a [SecurityQuestionEnrollment] in
// its lifecycle.
type QuestionState uint8

const (
	// QuestionComposing means the question and answer are still being
	// edited locally.
	QuestionComposing QuestionState = iota
	// QuestionSubmitted means the remote accepted the configuration.
	// The enrollment is finished and refuses further submissions.
	QuestionSubmitted
)

// String returns the state's display label.
func (s QuestionState) String() string {
	switch s {
	case QuestionComposing:
		return "composing"
	case QuestionSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// SecurityQuestionEnrollment configures the account's recovery
// question. The question may be typed freely or taken from
// [Core.SuggestedQuestions]; the answer must be confirmed before
// anything reaches the remote. The answer is held only until the
// submission resolves and is never persisted locally.
type SecurityQuestionEnrollment struct {
	core *Core

	mu       sync.Mutex
	busy     bool
	state    QuestionState
	question string
	answer   string
	confirm  string
}

// State returns the enrollment's current state.
func (q *SecurityQuestionEnrollment) State() QuestionState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// SuggestedQuestions returns the configured prompts a caller may offer
// as choices.
func (q *SecurityQuestionEnrollment) SuggestedQuestions() []string {
	return q.core.SuggestedQuestions()
}

// SetQuestion records the question text. Accepted only while composing.
func (q *SecurityQuestionEnrollment) SetQuestion(question string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuestionComposing || q.busy {
		return
	}
	q.question = strings.TrimSpace(question)
}

// SetAnswer records the answer text. Accepted only while composing.
func (q *SecurityQuestionEnrollment) SetAnswer(answer string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuestionComposing || q.busy {
		return
	}
	q.answer = answer
}

// SetConfirmation records the answer confirmation. Accepted only while
// composing.
func (q *SecurityQuestionEnrollment) SetConfirmation(confirm string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != QuestionComposing || q.busy {
		return
	}
	q.confirm = confirm
}

// CanSubmit reports whether the current inputs would pass local
// validation. It never talks to the remote.
func (q *SecurityQuestionEnrollment) CanSubmit() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != QuestionComposing || q.busy {
		return false
	}
	if res := validate.SecurityQuestion(q.question); !res.Valid {
		return false
	}
	if res := validate.SecurityAnswer(q.answer); !res.Valid {
		return false
	}
	if res := validate.Confirmation(q.answer, q.confirm); !res.Valid {
		return false
	}
	return true
}

// Submit validates the question, answer and confirmation locally and
// sends the pair to the remote. A profile that already carries a
// question refuses with [ErrQuestionConfigured]; the remote owns any
// replacement policy beyond that. On acceptance the profile flag is
// set, the held answer is discarded and the enrollment finishes.
func (q *SecurityQuestionEnrollment) Submit(ctx context.Context) error {
	q.mu.Lock()
	if q.busy {
		q.mu.Unlock()
		return ErrBusy
	}
	if q.state != QuestionComposing {
		q.mu.Unlock()
		return ErrQuestionConfigured
	}
	if q.core.Profile().HasSecurityQuestion {
		q.state = QuestionSubmitted
		q.mu.Unlock()
		return ErrQuestionConfigured
	}

	question := q.question
	answer := strings.TrimSpace(q.answer)

	if res := validate.SecurityQuestion(question); !res.Valid {
		q.mu.Unlock()
		return &ValidationError{Field: "question", Reason: res.Reason}
	}
	if res := validate.SecurityAnswer(q.answer); !res.Valid {
		q.mu.Unlock()
		return &ValidationError{Field: "answer", Reason: res.Reason}
	}
	if res := validate.Confirmation(q.answer, q.confirm); !res.Valid {
		q.mu.Unlock()
		return &ValidationError{Field: "confirmation", Reason: res.Reason}
	}
	q.busy = true
	q.mu.Unlock()

	err := q.core.remoteErr(q.core.authenticator.ConfigureSecurityQuestion(ctx, SecurityQuestionRequest{
		Question: question,
		Answer:   answer,
	}))

	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = false

	username := q.core.username()
	if err != nil {
		q.core.metricInc(MetricQuestionRejected)
		q.core.emitAudit(ctx, auditEventQuestionRejected, false, username, FactorSecurityQuestion, err, nil)
		return err
	}

	if err := q.core.updateProfile(ctx, func(p *VerificationProfile) {
		p.HasSecurityQuestion = true
	}); err != nil {
		return err
	}

	q.answer = ""
	q.confirm = ""
	q.state = QuestionSubmitted
	q.core.metricInc(MetricQuestionConfigured)
	q.core.emitAudit(ctx, auditEventQuestionConfigured, true, username, FactorSecurityQuestion, nil, nil)
	return nil
}
