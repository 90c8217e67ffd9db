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

// Session is a single client connection proxied end to end, from the
// moment a protocol handshake identifies a target through to channel
// teardown. Username and target are captured as immutable snapshots at
// bind time: renaming the underlying User or Target afterward must never
// change what a past session reports it ran as.
type Session struct {
	ID string

	Protocol Protocol

	RemoteAddress string

	UserSnapshot   UserSnapshot
	TargetSnapshot TargetSnapshot

	StartedAt time.Time
	EndedAt   *time.Time

	// TicketID is set when the session was established via a Ticket rather
	// than interactive credential validation.
	TicketID string
}

// CheckAndSetDefaults validates the session.
func (s *Session) CheckAndSetDefaults() error {
	if s.ID == "" {
		return trace.BadParameter("session: id is required")
	}
	if s.UserSnapshot.Username == "" {
		return trace.BadParameter("session %q: user snapshot is required", s.ID)
	}
	if s.StartedAt.IsZero() {
		return trace.BadParameter("session %q: started_at is required", s.ID)
	}
	return nil
}

// Active reports whether the session has not yet ended.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// End marks the session ended at the given time. It is a no-op if the
// session has already ended, so repeated close signals from different
// channel-close paths don't clobber the first recorded end time.
func (s *Session) End(at time.Time) {
	if s.EndedAt != nil {
		return
	}
	s.EndedAt = &at
}
