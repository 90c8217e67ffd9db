/*
Copyright 2024 Warpgate Labs.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// recoveryTokenTTL bounds how long an admin-recovery bearer token is valid,
// independent of any ApiToken expiry stored in the backend.
const recoveryTokenTTL = 15 * time.Minute

// RecoveryTokenIssuerConfig configures a RecoveryTokenIssuer.
type RecoveryTokenIssuerConfig struct {
	// SigningKey is the HMAC secret used to sign and verify tokens.
	SigningKey []byte
	Clock      clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills sane defaults.
func (c *RecoveryTokenIssuerConfig) CheckAndSetDefaults() error {
	if len(c.SigningKey) == 0 {
		return trace.BadParameter("recovery token issuer: signing key is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// recoveryClaims is the JWT claim set for an admin-recovery bearer token:
// a short-lived credential a locked-out admin uses to regain access
// without going through the normal credential policy, distinct from the
// durable, hash-stored ApiToken used for routine API calls.
type recoveryClaims struct {
	jwt.RegisteredClaims
}

// RecoveryTokenIssuer signs and verifies admin-recovery bearer tokens.
type RecoveryTokenIssuer struct {
	cfg RecoveryTokenIssuerConfig
}

// NewRecoveryTokenIssuer creates a RecoveryTokenIssuer from the given config.
func NewRecoveryTokenIssuer(cfg RecoveryTokenIssuerConfig) (*RecoveryTokenIssuer, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &RecoveryTokenIssuer{cfg: cfg}, nil
}

// Issue signs a recovery token for the given user id, valid for
// recoveryTokenTTL from now.
func (i *RecoveryTokenIssuer) Issue(userID string) (string, error) {
	now := i.cfg.Clock.Now()
	claims := recoveryClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(recoveryTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.cfg.SigningKey)
	if err != nil {
		return "", trace.Wrap(err)
	}
	return signed, nil
}

// Verify parses and validates a recovery token, returning the user id it
// was issued for.
func (i *RecoveryTokenIssuer) Verify(tokenString string) (string, error) {
	var claims recoveryClaims
	parser := jwt.NewParser(jwt.WithTimeFunc(i.cfg.Clock.Now))
	token, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, trace.BadParameter("unexpected signing method %v", t.Header["alg"])
		}
		return i.cfg.SigningKey, nil
	})
	if err != nil {
		return "", trace.AccessDenied("invalid recovery token: %v", err)
	}
	if !token.Valid {
		return "", trace.AccessDenied("invalid recovery token")
	}
	return claims.Subject, nil
}
