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

package types

import "github.com/gravitational/trace"

// User is a Warpgate local account: a username, its credentials, an
// optional per-protocol credential policy override, an optional byte-rate
// cap, and an optional link to an external identity.
type User struct {
	ID       string
	Username string

	Credentials []Credential

	// CredentialPolicy overrides the global per-protocol policy for this
	// user. Nil means "use the global policy".
	CredentialPolicy *Policy

	// RateLimitBytesPerSecond is this user's per-stream byte-rate cap.
	// Nil means unlimited.
	RateLimitBytesPerSecond *int64

	// LDAPServerID and LDAPObjectUUID link this account to an external
	// identity provider record, when linked via SSO auto-link.
	LDAPServerID   string
	LDAPObjectUUID string

	Description string

	// Roles assigned to this user (by role id).
	Roles []string
}

// CheckAndSetDefaults validates the user's invariants.
func (u *User) CheckAndSetDefaults() error {
	if u.Username == "" {
		return trace.BadParameter("user: username is required")
	}
	for i := range u.Credentials {
		if err := u.Credentials[i].CheckAndSetDefaults(); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// CredentialsOfKind returns every credential of the given kind.
func (u *User) CredentialsOfKind(kind CredentialKind) []Credential {
	var out []Credential
	for _, c := range u.Credentials {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// UserSnapshot is the small, immutable projection of a User captured into
// a Session at bind time (invariant: a session's recorded username never
// changes even if the underlying account is later renamed).
type UserSnapshot struct {
	Username string
}

// NewUserSnapshot projects a User into a UserSnapshot.
func NewUserSnapshot(u *User) UserSnapshot {
	return UserSnapshot{Username: u.Username}
}
