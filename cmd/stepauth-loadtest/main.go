package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	stepauth "github.com/nvidela/stepauth"
)

// accountState owns one core instance and serializes the flows driven
// through it. The challenge store admits a single pending challenge per
// username, so two workers must never race on the same account.
type accountState struct {
	core     *stepauth.Core
	username string
	mu       sync.Mutex
}

const (
	directPassword    = "Direct!pass1"
	challengePassword = "StepUp!pass1"
	smsChallengeCode  = "246810"
)

func main() {
	var (
		accounts    = flag.Int("accounts", 512, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (login + challenge)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix base")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	remote := &scriptedAuthenticator{}

	states := make([]accountState, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := 0; i < *accounts; i++ {
		cfg := stepauth.DefaultConfig()
		cfg.Session.RedisPrefix = fmt.Sprintf("%s%d", *prefix, i)
		cfg.Challenge.RedisPrefix = fmt.Sprintf("%s%dc", *prefix, i)
		core, err := stepauth.New().
			WithConfig(cfg).
			WithRedis(client).
			WithAuthenticator(remote).
			WithMetricsEnabled(true).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = accountState{core: core, username: fmt.Sprintf("user-%d", i)}
	}
	defer func() {
		for i := range states {
			states[i].core.Close()
		}
	}()
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runLoginPhase(ctx, states, *ops, *concurrency)
	challengeStats := runChallengePhase(ctx, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("challenge", challengeStats)
}

// runLoginPhase measures direct logins: submit credentials, receive a
// session, then log out untimed so the account is reusable.
func runLoginPhase(ctx context.Context, states []accountState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				flow := state.core.Login()
				flow.SetUsername(state.username)
				flow.SetPassword(directPassword)
				t0 := time.Now()
				user, err := flow.Submit(ctx)
				d := time.Since(t0)
				if err != nil || user == nil {
					atomic.AddInt64(&failures, 1)
				}
				_ = state.core.Logout(ctx)
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runChallengePhase measures step-up completions: the first submission
// lands in the challenged state, and the timed operation is answering
// the SMS challenge through the pending-challenge store.
func runChallengePhase(ctx context.Context, states []accountState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				flow := state.core.Login()
				flow.SetUsername(state.username)
				flow.SetPassword(challengePassword)
				if _, err := flow.Submit(ctx); err != nil || flow.State() != stepauth.LoginChallenged {
					atomic.AddInt64(&failures, 1)
					_ = flow.Cancel(ctx)
					state.mu.Unlock()
					continue
				}

				flow.SetChallengeInput(smsChallengeCode)
				t0 := time.Now()
				user, err := flow.SubmitChallenge(ctx)
				d := time.Since(t0)
				if err != nil || user == nil {
					atomic.AddInt64(&failures, 1)
				}
				_ = state.core.Logout(ctx)
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

// scriptedAuthenticator is a deterministic in-process remote. The
// password selects the script: directPassword signs in immediately,
// challengePassword demands an SMS step-up answered by smsChallengeCode.
type scriptedAuthenticator struct{}

func (a *scriptedAuthenticator) PrimaryLogin(_ context.Context, req stepauth.LoginRequest) (*stepauth.LoginOutcome, error) {
	if req.OTP != "" {
		if req.OTP != smsChallengeCode {
			return nil, &stepauth.RejectionError{Reason: "código incorrecto"}
		}
		return a.outcomeFor(req.Username), nil
	}
	if req.Password == challengePassword {
		return &stepauth.LoginOutcome{
			StepUp: &stepauth.StepUp{Factor: stepauth.FactorSMS},
		}, nil
	}
	if req.Password != directPassword {
		return nil, &stepauth.RejectionError{Reason: "credenciales incorrectas"}
	}
	return a.outcomeFor(req.Username), nil
}

func (a *scriptedAuthenticator) outcomeFor(username string) *stepauth.LoginOutcome {
	return &stepauth.LoginOutcome{
		Token: "token-" + username,
		User: &stepauth.UserRecord{
			ID:       "id-" + username,
			Username: username,
			Email:    username + "@example.com",
		},
	}
}

func (a *scriptedAuthenticator) BeginTotpEnrollment(context.Context) (*stepauth.TotpSetup, error) {
	return &stepauth.TotpSetup{Secret: "JBSWY3DPEHPK3PXP"}, nil
}

func (a *scriptedAuthenticator) VerifyTotpCode(context.Context, string) error { return nil }

func (a *scriptedAuthenticator) DisableTotp(context.Context, string) error { return nil }

func (a *scriptedAuthenticator) QueryTotpStatus(context.Context) (*stepauth.TotpStatus, error) {
	return &stepauth.TotpStatus{}, nil
}

func (a *scriptedAuthenticator) SendEmailCode(context.Context, stepauth.SendCodeRequest) error {
	return nil
}

func (a *scriptedAuthenticator) VerifyEmailCode(context.Context, string) error { return nil }

func (a *scriptedAuthenticator) SendSmsCode(context.Context, stepauth.SendCodeRequest) error {
	return nil
}

func (a *scriptedAuthenticator) VerifySmsCode(context.Context, string) error { return nil }

func (a *scriptedAuthenticator) ConfigureSecurityQuestion(context.Context, stepauth.SecurityQuestionRequest) error {
	return nil
}
