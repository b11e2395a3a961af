// Package stepauth is a multi-factor authentication orchestration
// core. It drives primary login, step-up challenges, factor enrollment,
// and the per-session verification profile against a caller-supplied
// remote [Authenticator], persisting session state in Redis.
//
// The package never verifies credentials or one-time codes itself; the
// remote owns all secret material. stepauth's job is the state machines
// around those calls: what may be submitted when, which inputs are
// locally valid, and which factor a step-up challenge demands.
//
// # Architecture boundaries
//
// stepauth is the public surface. It exposes [Core], [Builder],
// [Config], the flow controllers, and value types. Shared flow logic
// lives under internal/ and is never exported.
//
// # What this package must NOT do
//
//   - Generate, store, or check OTP secrets or password hashes.
//   - Retry a failed remote call on its own.
//   - Inspect challenge prompt text to infer the factor; the
//     [FactorKind] enum is the only signal.
package stepauth
