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

package srv

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"

	"github.com/warpgate-labs/warpgate/api/types"
)

// SessionBackend is the subset of the Persistence Gateway the registry
// needs to durably record sessions.
type SessionBackend interface {
	UpsertSession(ctx context.Context, session *types.Session) error
}

// Registry is the process-wide table of sessions currently proxied
// through this instance. Unlike the Persistence Gateway's session
// history, the registry only ever holds live sessions; a session is
// removed the moment its Core reports it ended.
type Registry struct {
	cfg RegistryConfig

	mu       sync.RWMutex
	sessions map[string]*Core
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Backend SessionBackend
	Clock   clockwork.Clock
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *RegistryConfig) CheckAndSetDefaults() error {
	if c.Backend == nil {
		return trace.BadParameter("registry: backend is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Registry{cfg: cfg, sessions: make(map[string]*Core)}, nil
}

// Open creates a new Session, persists its initial record, registers a
// Core for it, and returns the Core the frontends drive.
func (r *Registry) Open(ctx context.Context, protocol types.Protocol, remoteAddress string, user types.UserSnapshot, target types.TargetSnapshot, ticketID string) (*Core, error) {
	now := r.cfg.Clock.Now()
	session := &types.Session{
		ID:             uuid.NewString(),
		Protocol:       protocol,
		RemoteAddress:  remoteAddress,
		UserSnapshot:   user,
		TargetSnapshot: target,
		StartedAt:      now,
		TicketID:       ticketID,
	}
	if err := r.cfg.Backend.UpsertSession(ctx, session); err != nil {
		return nil, trace.Wrap(err)
	}

	core := newCore(session)
	r.mu.Lock()
	r.sessions[session.ID] = core
	r.mu.Unlock()
	return core, nil
}

// Get returns the Core for an active session.
func (r *Registry) Get(id string) (*Core, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	core, ok := r.sessions[id]
	if !ok {
		return nil, trace.NotFound("session %q is not active", id)
	}
	return core, nil
}

// Close ends a session: it records the end time, persists the final
// record, and removes it from the registry.
func (r *Registry) Close(ctx context.Context, id string) error {
	core, err := r.Get(id)
	if err != nil {
		return err
	}
	core.session.End(r.cfg.Clock.Now())
	core.closeOnce()

	if err := r.cfg.Backend.UpsertSession(ctx, core.session); err != nil {
		return trace.Wrap(err)
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}

// ActiveCount reports the number of currently proxied sessions, for the
// MetricProxiedSSHSessions gauge.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns a snapshot of every currently active session.
func (r *Registry) List() []*types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Session, 0, len(r.sessions))
	for _, core := range r.sessions {
		out = append(out, core.session)
	}
	return out
}

// eventBusCapacity bounds how many pending RCEvent/RCCommand messages a
// Core's bus will buffer before a sender blocks.
const eventBusCapacity = 64

// RCEventKind discriminates a notification flowing from a protocol
// frontend up through the session core (e.g. to the recorder or the
// policy layer).
type RCEventKind string

const (
	RCEventChannelOpened RCEventKind = "channel_opened"
	RCEventChannelClosed RCEventKind = "channel_closed"
	RCEventDataIn        RCEventKind = "data_in"
	RCEventDataOut       RCEventKind = "data_out"
)

// RCEvent is one notification raised by a frontend about session
// activity.
type RCEvent struct {
	Kind      RCEventKind
	ChannelID int
	Bytes     int
	At        time.Time
}

// RCCommandKind discriminates a directive flowing down from the session
// core into a protocol frontend (e.g. "stop accepting new channels").
type RCCommandKind string

const (
	RCCommandCloseChannel RCCommandKind = "close_channel"
	RCCommandTerminate    RCCommandKind = "terminate"
)

// RCCommand is one directive the session core issues to a frontend.
type RCCommand struct {
	Kind      RCCommandKind
	ChannelID int
}

// Core is the per-session orchestration point: it owns the canonical
// types.Session record and the two-way RCEvent/RCCommand bus the SSH
// Server Frontend and SSH Client Frontend exchange messages over while
// pairing and supervising channels.
type Core struct {
	session *types.Session

	events   chan RCEvent
	commands chan RCCommand

	closeCh   chan struct{}
	closeOnce func()
}

func newCore(session *types.Session) *Core {
	closeCh := make(chan struct{})
	var once sync.Once
	return &Core{
		session:  session,
		events:   make(chan RCEvent, eventBusCapacity),
		commands: make(chan RCCommand, eventBusCapacity),
		closeCh:  closeCh,
		closeOnce: func() {
			once.Do(func() { close(closeCh) })
		},
	}
}

// Session returns the session record this core orchestrates.
func (c *Core) Session() *types.Session {
	return c.session
}

// Emit posts an RCEvent onto the bus. Blocks if the bus is full; callers
// on a hot data path should use a bounded context.
func (c *Core) Emit(ctx context.Context, event RCEvent) error {
	select {
	case c.events <- event:
		return nil
	case <-c.closeCh:
		return trace.BadParameter("session %q is closed", c.session.ID)
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// Events returns the channel frontends read RCEvents from.
func (c *Core) Events() <-chan RCEvent {
	return c.events
}

// Command posts an RCCommand onto the bus.
func (c *Core) Command(ctx context.Context, cmd RCCommand) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-c.closeCh:
		return trace.BadParameter("session %q is closed", c.session.ID)
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// Commands returns the channel frontends read RCCommands from.
func (c *Core) Commands() <-chan RCCommand {
	return c.commands
}

// Done is closed when the session's registry entry is closed.
func (c *Core) Done() <-chan struct{} {
	return c.closeCh
}
