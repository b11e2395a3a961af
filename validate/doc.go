// Package validate centralizes field validation rules shared by the
// login and enrollment controllers.
//
// Every rule lives here so that the same field is never checked two
// different ways by two different flows. Checks are pure functions over
// strings: no I/O, no state, no allocation beyond the returned Result.
//
// # What this package must NOT do
//
//   - Import the stepauth root package or any of its sub-packages.
//   - Call the remote authenticator; local rejection must be decided
//     before any network traffic.
package validate
