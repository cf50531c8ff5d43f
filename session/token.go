package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// renewalLead is how long before expiry a renewal is scheduled.
	renewalLead = 30 * time.Second
	// renewalFloor is the shortest delay used for tokens already inside the
	// lead window.
	renewalFloor = 5 * time.Second
)

var errNoExpiry = errors.New("token has no exp claim")

// TokenExpiry decodes the exp claim of a JWT without verifying its
// signature. The result is only used to decide when to renew; it is never
// trusted for authorization.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("decoding access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding access token: %w", err)
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}
	return exp.Time, nil
}

// renewalDelay returns how long to wait before renewing a token expiring at
// exp: lead before expiry, or half the remaining lifetime (at least floor)
// when that moment has already passed.
func renewalDelay(exp, now time.Time, lead, floor time.Duration) time.Duration {
	remaining := exp.Sub(now)
	delay := remaining - lead
	if delay <= 0 {
		delay = max(floor, remaining/2)
	}
	return delay
}
