package stepauth

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

// fakeAuthenticator scripts the remote side of every flow. Each
// operation returns the configured value and counts its calls; setting
// loginFn overrides PrimaryLogin wholesale for multi-step scripts.
type fakeAuthenticator struct {
	mu sync.Mutex

	loginFn      func(req LoginRequest) (*LoginOutcome, error)
	loginOutcome *LoginOutcome
	loginErr     error
	loginCalls   int
	lastLogin    LoginRequest

	totpSetup       *TotpSetup
	totpSetupErr    error
	beginTotpCalls  int
	verifyTotpErr   error
	verifyTotpCalls int
	lastTotpCode    string
	disableTotpErr  error
	totpStatus      *TotpStatus
	totpStatusErr   error

	sendEmailErr     error
	sendEmailCalls   int
	lastSendEmail    SendCodeRequest
	verifyEmailErr   error
	verifyEmailCalls int
	lastEmailCode    string

	sendSmsErr     error
	sendSmsCalls   int
	lastSendSms    SendCodeRequest
	verifySmsErr   error
	verifySmsCalls int

	questionErr   error
	questionCalls int
	lastQuestion  SecurityQuestionRequest
}

func (f *fakeAuthenticator) PrimaryLogin(_ context.Context, req LoginRequest) (*LoginOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	f.lastLogin = req
	if f.loginFn != nil {
		return f.loginFn(req)
	}
	return f.loginOutcome, f.loginErr
}

func (f *fakeAuthenticator) BeginTotpEnrollment(context.Context) (*TotpSetup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginTotpCalls++
	return f.totpSetup, f.totpSetupErr
}

func (f *fakeAuthenticator) VerifyTotpCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyTotpCalls++
	f.lastTotpCode = code
	return f.verifyTotpErr
}

func (f *fakeAuthenticator) DisableTotp(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTotpCode = code
	return f.disableTotpErr
}

func (f *fakeAuthenticator) QueryTotpStatus(context.Context) (*TotpStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totpStatus, f.totpStatusErr
}

func (f *fakeAuthenticator) SendEmailCode(_ context.Context, req SendCodeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendEmailCalls++
	f.lastSendEmail = req
	return f.sendEmailErr
}

func (f *fakeAuthenticator) VerifyEmailCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyEmailCalls++
	f.lastEmailCode = code
	return f.verifyEmailErr
}

func (f *fakeAuthenticator) SendSmsCode(_ context.Context, req SendCodeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendSmsCalls++
	f.lastSendSms = req
	return f.sendSmsErr
}

func (f *fakeAuthenticator) VerifySmsCode(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifySmsCalls++
	return f.verifySmsErr
}

func (f *fakeAuthenticator) ConfigureSecurityQuestion(_ context.Context, req SecurityQuestionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	f.lastQuestion = req
	return f.questionErr
}

func testUser() *UserRecord {
	return &UserRecord{
		ID:       "u1",
		Username: "mgonzalez",
		Name:     "María",
		Surname:  "González",
		Email:    "maria@example.com",
		Phone:    "5512345678",
	}
}

func directOutcome() *LoginOutcome {
	return &LoginOutcome{
		Token: "opaque-session-token",
		User:  testUser(),
	}
}

func newTestCore(t *testing.T, fake *fakeAuthenticator) (*Core, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	core, err := New().
		WithRedis(rdb).
		WithAuthenticator(fake).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(core.Close)

	return core, mr
}

// signIn runs a direct primary login so enrollment tests start from an
// authenticated session.
func signIn(t *testing.T, core *Core, fake *fakeAuthenticator) *UserRecord {
	t.Helper()

	fake.mu.Lock()
	fake.loginFn = nil
	fake.loginOutcome = directOutcome()
	fake.loginErr = nil
	fake.mu.Unlock()

	flow := core.Login()
	flow.SetUsername("mgonzalez")
	flow.SetPassword("Str0ng!pass")

	user, err := flow.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if user == nil {
		t.Fatal("expected user from direct login")
	}
	return user
}
