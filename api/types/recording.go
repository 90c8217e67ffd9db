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

// RecordingKind discriminates the shape of the JSONL stream a Recording
// holds.
type RecordingKind string

const (
	// RecordingKindTerminal is a raw terminal byte stream with timing
	// frames, replayable like asciinema.
	RecordingKindTerminal RecordingKind = "terminal"
	// RecordingKindTraffic is a structured record of non-interactive
	// protocol traffic (e.g. SFTP operations, SQL statements).
	RecordingKindTraffic RecordingKind = "traffic"
)

// Recording is one append-only capture of a session's traffic. A session
// may own more than one recording (e.g. a terminal stream plus a file
// transfer log); invariant: a recording's SessionID never changes after
// creation, and once EndedAt is set no further frames may be appended.
type Recording struct {
	ID        string
	SessionID string
	Name      string
	Kind      RecordingKind

	StartedAt time.Time
	EndedAt   *time.Time

	// Metadata is kind-specific bookkeeping (e.g. terminal width/height at
	// start), stored as opaque JSON.
	Metadata []byte
}

// CheckAndSetDefaults validates the recording.
func (r *Recording) CheckAndSetDefaults() error {
	if r.SessionID == "" {
		return trace.BadParameter("recording: session id is required")
	}
	if r.Name == "" {
		return trace.BadParameter("recording: name is required")
	}
	if r.StartedAt.IsZero() {
		return trace.BadParameter("recording %q: started_at is required", r.Name)
	}
	return nil
}

// Open reports whether the recording can still accept appended frames.
func (r *Recording) Open() bool {
	return r.EndedAt == nil
}
