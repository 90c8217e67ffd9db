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

// Package auth implements the Credential Store, Policy Engine, Auth State
// Store and Login-Protection service described by the Warpgate
// authentication model.
package auth

import (
	"context"
	"crypto/subtle"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
)

// UserStore is the subset of the Persistence Gateway the Credential Store
// needs: lookup by username and by SSO identity.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	GetUserBySSO(ctx context.Context, provider, email string) (*types.User, error)
}

// CredentialStoreConfig configures a CredentialStore.
type CredentialStoreConfig struct {
	Users UserStore

	// Policy is the global default credential policy, used for any
	// protocol/user that doesn't carry its own override.
	Policy types.Policy

	// LDAP, when set, re-verifies an SSO-linked user's directory object
	// still exists before UsernameForSSO trusts the backend's cached link.
	LDAP *LDAPVerifier

	Log *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills sane defaults.
func (c *CredentialStoreConfig) CheckAndSetDefaults() error {
	if c.Users == nil {
		return trace.BadParameter("credential store: users backend is required")
	}
	if c.Policy.Kind == "" {
		c.Policy = types.AnySinglePolicy()
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentAuth)
	}
	return nil
}

// CredentialStore validates presented credentials against a user's stored
// credentials and answers policy questions about how many and which kinds
// of credentials a session still needs.
type CredentialStore struct {
	cfg CredentialStoreConfig
}

// NewCredentialStore creates a CredentialStore from the given config.
func NewCredentialStore(cfg CredentialStoreConfig) (*CredentialStore, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &CredentialStore{cfg: cfg}, nil
}

// ValidatePassword checks a presented plaintext password against every
// password credential on the user, returning the matching credential's ID
// on success.
func (s *CredentialStore) ValidatePassword(ctx context.Context, username, password string) (string, error) {
	user, err := s.cfg.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", trace.Wrap(err)
	}
	for _, cred := range user.CredentialsOfKind(types.CredentialKindPassword) {
		if cred.Password == nil {
			continue
		}
		if checkArgon2Password(password, cred.Password.Argon2Hash) {
			return cred.ID, nil
		}
	}
	return "", trace.AccessDenied("invalid username or password")
}

// ValidatePublicKey checks whether the given OpenSSH public key (already
// proven via a signature by the SSH transport layer) belongs to the user,
// returning the matching credential's ID on success.
func (s *CredentialStore) ValidatePublicKey(ctx context.Context, username, openSSHPublicKey string) (string, error) {
	user, err := s.cfg.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", trace.Wrap(err)
	}
	for _, cred := range user.CredentialsOfKind(types.CredentialKindPublicKey) {
		if cred.PublicKey == nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(cred.PublicKey.OpenSSHPublicKey), []byte(openSSHPublicKey)) == 1 {
			return cred.ID, nil
		}
	}
	return "", trace.AccessDenied("public key is not registered for %q", username)
}

// ValidateOTP checks a 6-digit TOTP code against every OTP credential on
// the user.
func (s *CredentialStore) ValidateOTP(ctx context.Context, username, code string) (string, error) {
	user, err := s.cfg.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", trace.Wrap(err)
	}
	for _, cred := range user.CredentialsOfKind(types.CredentialKindOTP) {
		if cred.OTP == nil {
			continue
		}
		if validateTOTP(cred.OTP.Key, code) {
			return cred.ID, nil
		}
	}
	return "", trace.AccessDenied("invalid one-time code")
}

// UsernameForSSO resolves an externally verified SSO identity (provider,
// email) to the local username it is linked to.
func (s *CredentialStore) UsernameForSSO(ctx context.Context, provider, email string) (string, error) {
	user, err := s.cfg.Users.GetUserBySSO(ctx, provider, email)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if s.cfg.LDAP != nil && user.LDAPObjectUUID != "" {
		if err := s.cfg.LDAP.VerifyObjectUUID(user.LDAPObjectUUID); err != nil {
			return "", trace.Wrap(err, "ldap identity link no longer valid for %q", user.Username)
		}
	}
	return user.Username, nil
}

// GetCredentialPolicy returns the effective policy for a user: the user's
// override if set, else the store's global default. Protocol dispatch is
// left to the returned Policy's Evaluate.
func (s *CredentialStore) GetCredentialPolicy(ctx context.Context, username string) (types.Policy, error) {
	user, err := s.cfg.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return types.Policy{}, trace.Wrap(err)
	}
	if user.CredentialPolicy != nil {
		return *user.CredentialPolicy, nil
	}
	return s.cfg.Policy, nil
}

