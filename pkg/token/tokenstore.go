// Package tokenstore remembers revoked admin JWT ids until they would have
// expired anyway.
package tokenstore

import (
	"sync"
	"time"
)

var (
	mu            sync.RWMutex
	revokedTokens = map[string]time.Time{} // jti -> token expiry
)

// RevokeToken marks jti as revoked until exp. A zero exp keeps it for a day.
func RevokeToken(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	if exp.IsZero() {
		exp = time.Now().Add(24 * time.Hour)
	}
	mu.Lock()
	defer mu.Unlock()
	revokedTokens[jti] = exp
	pruneLocked(time.Now())
}

func IsRevoked(jti string) bool {
	if jti == "" {
		return false
	}
	mu.RLock()
	defer mu.RUnlock()
	exp, ok := revokedTokens[jti]
	return ok && time.Now().Before(exp)
}

// pruneLocked drops entries whose token has expired; caller holds mu.
func pruneLocked(now time.Time) {
	for jti, exp := range revokedTokens {
		if !now.Before(exp) {
			delete(revokedTokens, jti)
		}
	}
}
