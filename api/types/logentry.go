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

import "time"

// LogEntry is one structured audit record: a human-readable line plus its
// originating structured fields, optionally tied to a session and a
// username. These are the rows the audit log backend persists and the CLI
// tails, distinct from the operator-facing logrus output emitted to
// stderr/syslog.
type LogEntry struct {
	ID        string
	Timestamp time.Time
	Text      string

	// Values holds the structured fields that produced Text, as opaque
	// JSON (mirrors logrus.Fields without requiring logentry to import the
	// logging package).
	Values []byte

	SessionID string
	Username  string
}
