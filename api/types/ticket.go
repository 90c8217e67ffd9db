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

// Ticket is a pre-authorized, single-purpose bearer credential that lets
// its holder establish a session against one target as one user without
// going through interactive credential validation, for a bounded number of
// uses and a bounded lifetime.
type Ticket struct {
	ID     string
	Secret string

	Username string
	TargetID string

	// UsesLeft decrements on each session established with this ticket.
	// A negative value means unlimited uses.
	UsesLeft int

	ExpiresAt time.Time

	CreatedAt   time.Time
	Description string
}

// CheckAndSetDefaults validates the ticket.
func (t *Ticket) CheckAndSetDefaults() error {
	if t.Secret == "" {
		return trace.BadParameter("ticket: secret is required")
	}
	if t.Username == "" {
		return trace.BadParameter("ticket: username is required")
	}
	if t.TargetID == "" {
		return trace.BadParameter("ticket: target id is required")
	}
	if t.ExpiresAt.IsZero() {
		return trace.BadParameter("ticket: expiry is required")
	}
	return nil
}

// Usable reports whether the ticket can still be redeemed at the given
// time: it must not be expired and must have uses remaining.
func (t *Ticket) Usable(at time.Time) bool {
	if !at.Before(t.ExpiresAt) {
		return false
	}
	return t.UsesLeft != 0
}

// Consume decrements the remaining-use counter by one, unless the ticket
// allows unlimited uses.
func (t *Ticket) Consume() {
	if t.UsesLeft > 0 {
		t.UsesLeft--
	}
}
