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

// Package memory implements an in-process, mutex-guarded Backend. It is
// suitable for tests and single-instance deployments that don't need
// state to survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/api/types"
)

// Backend is an in-memory implementation of backend.Backend.
type Backend struct {
	mu sync.RWMutex

	usersByID    map[string]*types.User
	rolesByID    map[string]*types.Role
	targetsByID  map[string]*types.Target
	groupsByID   map[string]*types.TargetGroup
	sessionsByID map[string]*types.Session
	ticketsByID  map[string]*types.Ticket
	hostsByID    map[string]*types.KnownHost
	recsByID     map[string]*types.Recording
	logEntries   []*types.LogEntry
	tokensByID   map[string]*types.ApiToken

	params *types.Parameters
}

// New creates an empty in-memory Backend.
func New() *Backend {
	return &Backend{
		usersByID:    make(map[string]*types.User),
		rolesByID:    make(map[string]*types.Role),
		targetsByID:  make(map[string]*types.Target),
		groupsByID:   make(map[string]*types.TargetGroup),
		sessionsByID: make(map[string]*types.Session),
		ticketsByID:  make(map[string]*types.Ticket),
		hostsByID:    make(map[string]*types.KnownHost),
		recsByID:     make(map[string]*types.Recording),
		tokensByID:   make(map[string]*types.ApiToken),
		params:       &types.Parameters{},
	}
}

// Close is a no-op for the in-memory backend.
func (b *Backend) Close() error { return nil }

func newID() string { return uuid.NewString() }

// --- users ---

func (b *Backend) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.usersByID[id]
	if !ok {
		return nil, trace.NotFound("user %q not found", id)
	}
	return u, nil
}

func (b *Backend) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, u := range b.usersByID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, trace.NotFound("user %q not found", username)
}

func (b *Backend) GetUserBySSO(ctx context.Context, provider, email string) (*types.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, u := range b.usersByID {
		for _, cred := range u.Credentials {
			if cred.SSO != nil && cred.SSO.Provider == provider && cred.SSO.Email == email {
				return u, nil
			}
		}
	}
	return nil, trace.NotFound("no user linked to sso identity %s:%s", provider, email)
}

func (b *Backend) ListUsers(ctx context.Context) ([]*types.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.User, 0, len(b.usersByID))
	for _, u := range b.usersByID {
		out = append(out, u)
	}
	return out, nil
}

func (b *Backend) UpsertUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usersByID[user.ID] = user
	return nil
}

func (b *Backend) DeleteUser(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.usersByID[id]; !ok {
		return trace.NotFound("user %q not found", id)
	}
	delete(b.usersByID, id)
	return nil
}

// --- credentials (stored inline on the owning user) ---

func (b *Backend) AddCredential(ctx context.Context, userID string, cred *types.Credential) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.usersByID[userID]
	if !ok {
		return trace.NotFound("user %q not found", userID)
	}
	if cred.ID == "" {
		cred.ID = newID()
	}
	cred.UserID = userID
	u.Credentials = append(u.Credentials, *cred)
	return nil
}

func (b *Backend) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.usersByID[userID]
	if !ok {
		return trace.NotFound("user %q not found", userID)
	}
	for i, c := range u.Credentials {
		if c.ID == credentialID {
			u.Credentials = append(u.Credentials[:i], u.Credentials[i+1:]...)
			return nil
		}
	}
	return trace.NotFound("credential %q not found", credentialID)
}

// --- roles ---

func (b *Backend) GetRole(ctx context.Context, id string) (*types.Role, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rolesByID[id]
	if !ok {
		return nil, trace.NotFound("role %q not found", id)
	}
	return r, nil
}

func (b *Backend) ListRoles(ctx context.Context) ([]*types.Role, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Role, 0, len(b.rolesByID))
	for _, r := range b.rolesByID {
		out = append(out, r)
	}
	return out, nil
}

func (b *Backend) UpsertRole(ctx context.Context, role *types.Role) error {
	if role.ID == "" {
		role.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolesByID[role.ID] = role
	return nil
}

func (b *Backend) DeleteRole(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rolesByID[id]; !ok {
		return trace.NotFound("role %q not found", id)
	}
	delete(b.rolesByID, id)
	return nil
}

// --- targets ---

func (b *Backend) GetTarget(ctx context.Context, id string) (*types.Target, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.targetsByID[id]
	if !ok {
		return nil, trace.NotFound("target %q not found", id)
	}
	return t, nil
}

func (b *Backend) GetTargetByName(ctx context.Context, name string) (*types.Target, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.targetsByID {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, trace.NotFound("target %q not found", name)
}

func (b *Backend) ListTargets(ctx context.Context) ([]*types.Target, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Target, 0, len(b.targetsByID))
	for _, t := range b.targetsByID {
		out = append(out, t)
	}
	return out, nil
}

func (b *Backend) UpsertTarget(ctx context.Context, target *types.Target) error {
	if target.ID == "" {
		target.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targetsByID[target.ID] = target
	return nil
}

func (b *Backend) DeleteTarget(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.targetsByID[id]; !ok {
		return trace.NotFound("target %q not found", id)
	}
	delete(b.targetsByID, id)
	return nil
}

// --- target groups ---

func (b *Backend) GetTargetGroup(ctx context.Context, id string) (*types.TargetGroup, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	g, ok := b.groupsByID[id]
	if !ok {
		return nil, trace.NotFound("target group %q not found", id)
	}
	return g, nil
}

func (b *Backend) ListTargetGroups(ctx context.Context) ([]*types.TargetGroup, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.TargetGroup, 0, len(b.groupsByID))
	for _, g := range b.groupsByID {
		out = append(out, g)
	}
	return out, nil
}

func (b *Backend) UpsertTargetGroup(ctx context.Context, group *types.TargetGroup) error {
	if group.ID == "" {
		group.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groupsByID[group.ID] = group
	return nil
}

func (b *Backend) DeleteTargetGroup(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.groupsByID[id]; !ok {
		return trace.NotFound("target group %q not found", id)
	}
	delete(b.groupsByID, id)
	return nil
}

// --- sessions ---

func (b *Backend) GetSession(ctx context.Context, id string) (*types.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.sessionsByID[id]
	if !ok {
		return nil, trace.NotFound("session %q not found", id)
	}
	return s, nil
}

func (b *Backend) ListSessions(ctx context.Context) ([]*types.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Session, 0, len(b.sessionsByID))
	for _, s := range b.sessionsByID {
		out = append(out, s)
	}
	return out, nil
}

func (b *Backend) UpsertSession(ctx context.Context, session *types.Session) error {
	if session.ID == "" {
		return trace.BadParameter("session: id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionsByID[session.ID] = session
	return nil
}

// --- tickets ---

func (b *Backend) GetTicketBySecret(ctx context.Context, secret string) (*types.Ticket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.ticketsByID {
		if t.Secret == secret {
			return t, nil
		}
	}
	return nil, trace.NotFound("ticket not found")
}

func (b *Backend) ListTickets(ctx context.Context) ([]*types.Ticket, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Ticket, 0, len(b.ticketsByID))
	for _, t := range b.ticketsByID {
		out = append(out, t)
	}
	return out, nil
}

func (b *Backend) UpsertTicket(ctx context.Context, ticket *types.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ticketsByID[ticket.ID] = ticket
	return nil
}

func (b *Backend) DeleteTicket(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.ticketsByID[id]; !ok {
		return trace.NotFound("ticket %q not found", id)
	}
	delete(b.ticketsByID, id)
	return nil
}

// --- known hosts ---

func (b *Backend) GetKnownHost(ctx context.Context, host string, port int, keyType string) (*types.KnownHost, error) {
	key := fmt.Sprintf("%s:%d:%s", host, port, keyType)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, kh := range b.hostsByID {
		if kh.Identity() == key {
			return kh, nil
		}
	}
	return nil, trace.NotFound("known host %q not found", key)
}

func (b *Backend) ListKnownHosts(ctx context.Context) ([]*types.KnownHost, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.KnownHost, 0, len(b.hostsByID))
	for _, kh := range b.hostsByID {
		out = append(out, kh)
	}
	return out, nil
}

func (b *Backend) UpsertKnownHost(ctx context.Context, kh *types.KnownHost) error {
	if kh.ID == "" {
		kh.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hostsByID[kh.ID] = kh
	return nil
}

func (b *Backend) DeleteKnownHost(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.hostsByID[id]; !ok {
		return trace.NotFound("known host %q not found", id)
	}
	delete(b.hostsByID, id)
	return nil
}

// --- recordings ---

func (b *Backend) GetRecording(ctx context.Context, id string) (*types.Recording, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.recsByID[id]
	if !ok {
		return nil, trace.NotFound("recording %q not found", id)
	}
	return r, nil
}

func (b *Backend) ListRecordingsBySession(ctx context.Context, sessionID string) ([]*types.Recording, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*types.Recording
	for _, r := range b.recsByID {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *Backend) UpsertRecording(ctx context.Context, rec *types.Recording) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recsByID[rec.ID] = rec
	return nil
}

// --- log entries ---

func (b *Backend) AppendLogEntry(ctx context.Context, entry *types.LogEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logEntries = append(b.logEntries, entry)
	return nil
}

func (b *Backend) ListLogEntriesBySession(ctx context.Context, sessionID string) ([]*types.LogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*types.LogEntry
	for _, e := range b.logEntries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- api tokens ---

func (b *Backend) GetApiTokenByHash(ctx context.Context, hash string) (*types.ApiToken, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tokensByID {
		if t.Hash == hash {
			return t, nil
		}
	}
	return nil, trace.NotFound("api token not found")
}

func (b *Backend) ListApiTokensByUser(ctx context.Context, userID string) ([]*types.ApiToken, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*types.ApiToken
	for _, t := range b.tokensByID {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (b *Backend) UpsertApiToken(ctx context.Context, token *types.ApiToken) error {
	if token.ID == "" {
		token.ID = newID()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensByID[token.ID] = token
	return nil
}

func (b *Backend) DeleteApiToken(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tokensByID[id]; !ok {
		return trace.NotFound("api token %q not found", id)
	}
	delete(b.tokensByID, id)
	return nil
}

// --- parameters ---

func (b *Backend) GetParameters(ctx context.Context) (*types.Parameters, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p := *b.params
	return &p, nil
}

func (b *Backend) SetParameters(ctx context.Context, params *types.Parameters) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := *params
	b.params = &p
	return nil
}
