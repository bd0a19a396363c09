package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired inspects a JWT bearer token's exp claim without verifying its
// signature. Verification is the remote's job; the local check only exists to
// turn a guaranteed 401 into an immediate rejection with no network call.
// Returns an error if the token is not a parseable JWT (opaque tokens are
// fine — the caller should send them as-is).
func TokenExpired(token string, now time.Time) (bool, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, fmt.Errorf("parsing bearer token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("reading exp claim: %w", err)
	}
	if exp == nil {
		return false, nil
	}
	return now.After(exp.Time), nil
}
