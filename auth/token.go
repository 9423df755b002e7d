// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	// SafetyMargin is how long before its expiry a cached token stops being reused.
	SafetyMargin = 30 * time.Second

	// DefaultTokenLifetime is assumed for tokens that carry no expiry at all.
	DefaultTokenLifetime = 5 * time.Minute

	// DefaultCacheSize bounds the number of service identifiers with a cached token.
	DefaultCacheSize = 128
)

// cachedToken is an access token obtained by a client-credentials exchange.
type cachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// usable reports whether t may still be sent at now.
func (t cachedToken) usable(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-SafetyMargin))
}

// jwtExpiry returns the "exp" claim of token when it is a JWT.
// The signature is not verified; the claim is only used to schedule a refresh.
func jwtExpiry(token string) (time.Time, bool) {
	tok, err := jwt.ParseInsecure([]byte(token))
	if err != nil {
		return time.Time{}, false
	}
	exp, ok := tok.Expiration()
	if !ok || exp.IsZero() {
		return time.Time{}, false
	}
	return exp, true
}
