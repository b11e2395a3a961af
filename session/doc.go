// Package session holds the persisted authentication state: the
// session model, its binary wire format, the Redis-backed store, and
// local token expiry inspection.
//
// The verification [Profile] lives here because it is part of the
// persisted record; the root package aliases it for its public API.
package session
