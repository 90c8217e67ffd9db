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
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRecoveryTokenIssuerRoundTrip(t *testing.T) {
	issuer, err := NewRecoveryTokenIssuer(RecoveryTokenIssuerConfig{SigningKey: []byte("test-secret")})
	require.NoError(t, err)

	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestRecoveryTokenIssuerRejectsExpiredToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer, err := NewRecoveryTokenIssuer(RecoveryTokenIssuerConfig{
		SigningKey: []byte("test-secret"),
		Clock:      clock,
	})
	require.NoError(t, err)

	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	clock.Advance(recoveryTokenTTL + time.Minute)

	_, err = issuer.Verify(token)
	require.Error(t, err)
}

func TestRecoveryTokenIssuerRejectsWrongKey(t *testing.T) {
	issuer, err := NewRecoveryTokenIssuer(RecoveryTokenIssuerConfig{SigningKey: []byte("secret-a")})
	require.NoError(t, err)
	token, err := issuer.Issue("user-1")
	require.NoError(t, err)

	other, err := NewRecoveryTokenIssuer(RecoveryTokenIssuerConfig{SigningKey: []byte("secret-b")})
	require.NoError(t, err)
	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestNewRecoveryTokenIssuerRequiresSigningKey(t *testing.T) {
	_, err := NewRecoveryTokenIssuer(RecoveryTokenIssuerConfig{})
	require.Error(t, err)
}
