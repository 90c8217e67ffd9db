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
	"context"
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
)

type fakeUserStore struct {
	byUsername map[string]*types.User
	bySSO      map[string]*types.User
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, trace.NotFound("user %q not found", username)
	}
	return u, nil
}

func (f *fakeUserStore) GetUserBySSO(ctx context.Context, provider, email string) (*types.User, error) {
	u, ok := f.bySSO[provider+":"+email]
	if !ok {
		return nil, trace.NotFound("sso identity not linked")
	}
	return u, nil
}

func TestCredentialStoreValidatePassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	users := &fakeUserStore{byUsername: map[string]*types.User{
		"alice": {
			Username: "alice",
			Credentials: []types.Credential{
				{ID: "c1", Kind: types.CredentialKindPassword, Password: &types.PasswordCredential{Argon2Hash: hash}},
			},
		},
	}}
	store, err := NewCredentialStore(CredentialStoreConfig{Users: users})
	require.NoError(t, err)

	id, err := store.ValidatePassword(context.Background(), "alice", "correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, "c1", id)

	_, err = store.ValidatePassword(context.Background(), "alice", "wrong")
	require.Error(t, err)
	require.True(t, trace.IsAccessDenied(err))
}

func TestCredentialStoreValidateOTP(t *testing.T) {
	key := []byte("01234567890123456789")
	code, err := totp.GenerateCodeCustom(encodeOTPKey(key), time.Now(), totp.ValidateOpts{
		Period: 30, Skew: 1, Digits: 6,
	})
	require.NoError(t, err)

	users := &fakeUserStore{byUsername: map[string]*types.User{
		"alice": {
			Username: "alice",
			Credentials: []types.Credential{
				{ID: "c1", Kind: types.CredentialKindOTP, OTP: &types.OTPCredential{Key: key}},
			},
		},
	}}
	store, err := NewCredentialStore(CredentialStoreConfig{Users: users})
	require.NoError(t, err)

	id, err := store.ValidateOTP(context.Background(), "alice", code)
	require.NoError(t, err)
	require.Equal(t, "c1", id)
}

func TestCredentialStoreUsernameForSSO(t *testing.T) {
	users := &fakeUserStore{
		bySSO: map[string]*types.User{
			"okta:alice@example.com": {Username: "alice"},
		},
	}
	store, err := NewCredentialStore(CredentialStoreConfig{Users: users})
	require.NoError(t, err)

	username, err := store.UsernameForSSO(context.Background(), "okta", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "alice", username)
}

func TestCredentialStoreUsernameForSSORejectsStaleLDAPLink(t *testing.T) {
	users := &fakeUserStore{
		bySSO: map[string]*types.User{
			"okta:alice@example.com": {Username: "alice", LDAPObjectUUID: "some-uuid"},
		},
	}
	ldap, err := NewLDAPVerifier(LDAPVerifierConfig{
		Addr:   "ldap://127.0.0.1:1",
		BaseDN: "dc=example,dc=com",
	})
	require.NoError(t, err)

	store, err := NewCredentialStore(CredentialStoreConfig{Users: users, LDAP: ldap})
	require.NoError(t, err)

	_, err = store.UsernameForSSO(context.Background(), "okta", "alice@example.com")
	require.Error(t, err)
}

func TestCredentialStoreGetCredentialPolicy(t *testing.T) {
	override := types.AllRequiredPolicy(types.NewCredentialKindSet(types.CredentialKindPassword, types.CredentialKindOTP))
	users := &fakeUserStore{byUsername: map[string]*types.User{
		"alice": {Username: "alice"},
		"bob":   {Username: "bob", CredentialPolicy: &override},
	}}
	store, err := NewCredentialStore(CredentialStoreConfig{Users: users, Policy: types.AnySinglePolicy()})
	require.NoError(t, err)

	p, err := store.GetCredentialPolicy(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, types.PolicyKindAnySingle, p.Kind)

	p, err = store.GetCredentialPolicy(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, types.PolicyKindAllRequired, p.Kind)
}
