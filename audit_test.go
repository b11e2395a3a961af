package stepauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func newAuditCore(t *testing.T, fake *fakeAuthenticator, sink AuditSink) *Core {
	t.Helper()

	_, rdb := newTestRedis(t)
	cfg := defaultConfig()
	cfg.Audit.Enabled = true

	core, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuthenticator(fake).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)
	return core
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	fake := &fakeAuthenticator{loginErr: &RejectionError{Reason: "credenciales incorrectas"}}

	_, rdb := newTestRedis(t)
	core, err := New().
		WithRedis(rdb).
		WithAuthenticator(fake).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)

	flow := core.Login()
	flow.SetUsername("mgonzalez")
	flow.SetPassword("wrong")
	_, _ = flow.Submit(context.Background())
	time.Sleep(30 * time.Millisecond)

	if sink.count.Load() != 0 {
		t.Fatalf("expected no audit calls when disabled, got %d", sink.count.Load())
	}
}

func TestAuditLoginEventsDelivered(t *testing.T) {
	sink := NewChannelSink(16)
	fake := &fakeAuthenticator{loginOutcome: directOutcome()}
	core := newAuditCore(t, fake, sink)

	signIn(t, core, fake)

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginSuccess {
			t.Fatalf("expected login success event, got %q", event.EventType)
		}
		if !event.Success || event.Username != "mgonzalez" {
			t.Fatalf("unexpected event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditRejectionCarriesErrorCode(t *testing.T) {
	sink := NewChannelSink(16)
	fake := &fakeAuthenticator{loginErr: &RejectionError{Reason: "credenciales incorrectas"}}
	core := newAuditCore(t, fake, sink)

	flow := core.Login()
	flow.SetUsername("mgonzalez")
	flow.SetPassword("wrong")
	if _, err := flow.Submit(context.Background()); err == nil {
		t.Fatal("expected rejection")
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventLoginRejected {
			t.Fatalf("expected rejection event, got %q", event.EventType)
		}
		if event.Error != string(auditErrRejected) {
			t.Fatalf("expected stable error code, got %q", event.Error)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditChallengeEventCarriesFactor(t *testing.T) {
	sink := NewChannelSink(16)
	fake := &fakeAuthenticator{loginFn: stepUpThenSuccess(FactorSMS, "123456")}
	core := newAuditCore(t, fake, sink)

	flow := core.Login()
	flow.SetUsername("mgonzalez")
	flow.SetPassword("Str0ng!pass")
	if _, err := flow.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventStepUpRequired {
			t.Fatalf("expected step-up event, got %q", event.EventType)
		}
		if event.Factor != "sms" {
			t.Fatalf("expected sms factor, got %q", event.Factor)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for audit event")
	}
}

func TestAuditDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	cfg := AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}
	d := newAuditDispatcher(cfg, sink)

	// First event occupies the sink, second fills the buffer, the rest
	// must drop.
	for i := 0; i < 6; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess})
	}

	deadline := time.After(time.Second)
	for d.Dropped() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected dropped events under backpressure")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	close(sink.gate)
	d.Close()
}

func TestAuditCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	cfg := AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: false}
	d := newAuditDispatcher(cfg, sink)

	const events = 32
	for i := 0; i < events; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess})
	}
	d.Close()

	if got := sink.count.Load(); got != events {
		t.Fatalf("expected %d events delivered before close, got %d", events, got)
	}

	// Emit after close is a no-op.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	if got := sink.count.Load(); got != events {
		t.Fatalf("expected no delivery after close, got %d", got)
	}
}

func TestJSONWriterSinkWritesOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Unix(1700000000, 0).UTC(),
		EventType: auditEventLoginSuccess,
		Username:  "mgonzalez",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventLogout,
		Success:   true,
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if event.EventType != auditEventLoginSuccess || event.Username != "mgonzalez" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want AuditErrorCode
	}{
		{"nil", nil, ""},
		{"rejection", &RejectionError{Reason: "no"}, auditErrRejected},
		{"transport", errors.New("boom"), auditErrInternal},
		{"wrapped transport", ErrTransport, auditErrTransport},
		{"validation", &ValidationError{Field: "code"}, auditErrValidation},
		{"not authenticated", ErrNotAuthenticated, auditErrNotAuthenticated},
		{"challenge expired", ErrChallengeExpired, auditErrChallengeExpired},
		{"attempts", ErrChallengeAttempts, auditErrChallengeAttempts},
		{"factor verified", ErrFactorVerified, auditErrFactorVerified},
		{"question configured", ErrQuestionConfigured, auditErrQuestionConfigured},
		{"unknown factor", ErrUnknownFactor, auditErrUnknownFactor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := auditErrorCode(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
