package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether a stored token carries an exp claim in
// the past. The remote owns token semantics; this only inspects the
// claim without verifying the signature. Tokens that do not parse as
// JWTs, or that carry no exp claim, are treated as opaque and never
// expire locally.
func TokenExpired(token string, now time.Time, leeway time.Duration) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}

	return exp.Time.Add(leeway).Before(now)
}
