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

package events

import (
	"context"
	"encoding/json"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
)

// LogBackend is the subset of the Persistence Gateway the audit emitter
// needs.
type LogBackend interface {
	AppendLogEntry(ctx context.Context, entry *types.LogEntry) error
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	Backend LogBackend
	Clock   clockwork.Clock
	Log     *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *EmitterConfig) CheckAndSetDefaults() error {
	if c.Backend == nil {
		return trace.BadParameter("emitter: backend is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentEvents)
	}
	return nil
}

// Emitter writes structured audit records both to the operator-facing
// logrus output and, durably, to the Persistence Gateway as LogEntry
// rows. This mirrors the dual destination of the teacher's audit
// pipeline: logrus for operators tailing stderr/syslog, a backend-backed
// store for the audit trail operators query later.
type Emitter struct {
	cfg EmitterConfig
}

// NewEmitter creates an Emitter.
func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Emitter{cfg: cfg}, nil
}

// Emit logs text at info level with the given structured fields and
// persists it as a LogEntry, optionally tied to a session and username.
func (e *Emitter) Emit(ctx context.Context, sessionID, username, text string, fields logrus.Fields) {
	entry := e.cfg.Log.WithFields(fields)
	if sessionID != "" {
		entry = entry.WithField("session_id", sessionID)
	}
	if username != "" {
		entry = entry.WithField("username", username)
	}
	entry.Info(text)

	values, err := json.Marshal(fields)
	if err != nil {
		e.cfg.Log.WithError(err).Warn("failed to encode log entry fields")
		values = []byte("{}")
	}

	record := &types.LogEntry{
		Timestamp: e.cfg.Clock.Now(),
		Text:      text,
		Values:    values,
		SessionID: sessionID,
		Username:  username,
	}
	if err := e.cfg.Backend.AppendLogEntry(ctx, record); err != nil {
		e.cfg.Log.WithError(err).Warn("failed to persist audit log entry")
	}
}
