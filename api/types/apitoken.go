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

import (
	"time"

	"github.com/gravitational/trace"
)

// ApiToken is a bearer credential for the HTTP admin API, distinct from a
// Ticket: a ticket authorizes one session against one target, a token
// authorizes calls against the management API under a user's identity.
type ApiToken struct {
	ID     string
	UserID string

	// Label is an operator-chosen name for this token, shown in listings.
	Label string

	// Hash is the SHA-256 hash of the bearer secret; the secret itself is
	// shown once at creation and never stored.
	Hash string

	CreatedAt time.Time
	ExpiresAt *time.Time
}

// CheckAndSetDefaults validates the token record.
func (t *ApiToken) CheckAndSetDefaults() error {
	if t.UserID == "" {
		return trace.BadParameter("api token: user id is required")
	}
	if t.Hash == "" {
		return trace.BadParameter("api token: hash is required")
	}
	return nil
}

// Expired reports whether the token is past its expiry at the given time.
// A nil ExpiresAt means the token never expires.
func (t *ApiToken) Expired(at time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !at.Before(*t.ExpiresAt)
}
