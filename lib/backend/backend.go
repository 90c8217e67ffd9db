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

// Package backend defines the Persistence Gateway: the storage contract
// every Warpgate component uses to read and write its durable state, and
// the concrete adapters (memory, sql) that implement it.
package backend

import (
	"context"

	"github.com/warpgate-labs/warpgate/api/types"
)

// Backend is the full Persistence Gateway surface. Every adapter
// (memory, sql) implements every method; callers never type-switch on
// the concrete backend.
type Backend interface {
	UserBackend
	CredentialBackend
	RoleBackend
	TargetBackend
	TargetGroupBackend
	SessionBackend
	TicketBackend
	KnownHostBackend
	RecordingBackend
	LogEntryBackend
	ApiTokenBackend
	ParametersBackend

	// Close releases any resources (connection pools, file handles) held
	// by the backend.
	Close() error
}

// UserBackend persists User records.
type UserBackend interface {
	GetUserByID(ctx context.Context, id string) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	GetUserBySSO(ctx context.Context, provider, email string) (*types.User, error)
	ListUsers(ctx context.Context) ([]*types.User, error)
	UpsertUser(ctx context.Context, user *types.User) error
	DeleteUser(ctx context.Context, id string) error
}

// CredentialBackend persists Credential records as part of a user.
// Credentials are addressed by (userID, credentialID) since they have no
// independent identity outside their owning user.
type CredentialBackend interface {
	AddCredential(ctx context.Context, userID string, cred *types.Credential) error
	RemoveCredential(ctx context.Context, userID, credentialID string) error
}

// RoleBackend persists Role records.
type RoleBackend interface {
	GetRole(ctx context.Context, id string) (*types.Role, error)
	ListRoles(ctx context.Context) ([]*types.Role, error)
	UpsertRole(ctx context.Context, role *types.Role) error
	DeleteRole(ctx context.Context, id string) error
}

// TargetBackend persists Target records.
type TargetBackend interface {
	GetTarget(ctx context.Context, id string) (*types.Target, error)
	GetTargetByName(ctx context.Context, name string) (*types.Target, error)
	ListTargets(ctx context.Context) ([]*types.Target, error)
	UpsertTarget(ctx context.Context, target *types.Target) error
	DeleteTarget(ctx context.Context, id string) error
}

// TargetGroupBackend persists TargetGroup records.
type TargetGroupBackend interface {
	GetTargetGroup(ctx context.Context, id string) (*types.TargetGroup, error)
	ListTargetGroups(ctx context.Context) ([]*types.TargetGroup, error)
	UpsertTargetGroup(ctx context.Context, group *types.TargetGroup) error
	DeleteTargetGroup(ctx context.Context, id string) error
}

// SessionBackend persists Session records.
type SessionBackend interface {
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context) ([]*types.Session, error)
	UpsertSession(ctx context.Context, session *types.Session) error
}

// TicketBackend persists Ticket records.
type TicketBackend interface {
	GetTicketBySecret(ctx context.Context, secret string) (*types.Ticket, error)
	ListTickets(ctx context.Context) ([]*types.Ticket, error)
	UpsertTicket(ctx context.Context, ticket *types.Ticket) error
	DeleteTicket(ctx context.Context, id string) error
}

// KnownHostBackend persists KnownHost records.
type KnownHostBackend interface {
	GetKnownHost(ctx context.Context, host string, port int, keyType string) (*types.KnownHost, error)
	ListKnownHosts(ctx context.Context) ([]*types.KnownHost, error)
	UpsertKnownHost(ctx context.Context, kh *types.KnownHost) error
	DeleteKnownHost(ctx context.Context, id string) error
}

// RecordingBackend persists Recording records.
type RecordingBackend interface {
	GetRecording(ctx context.Context, id string) (*types.Recording, error)
	ListRecordingsBySession(ctx context.Context, sessionID string) ([]*types.Recording, error)
	UpsertRecording(ctx context.Context, rec *types.Recording) error
}

// LogEntryBackend persists audit LogEntry rows.
type LogEntryBackend interface {
	AppendLogEntry(ctx context.Context, entry *types.LogEntry) error
	ListLogEntriesBySession(ctx context.Context, sessionID string) ([]*types.LogEntry, error)
}

// ApiTokenBackend persists ApiToken records.
type ApiTokenBackend interface {
	GetApiTokenByHash(ctx context.Context, hash string) (*types.ApiToken, error)
	ListApiTokensByUser(ctx context.Context, userID string) ([]*types.ApiToken, error)
	UpsertApiToken(ctx context.Context, token *types.ApiToken) error
	DeleteApiToken(ctx context.Context, id string) error
}

// ParametersBackend persists the single instance-wide Parameters record.
type ParametersBackend interface {
	GetParameters(ctx context.Context) (*types.Parameters, error)
	SetParameters(ctx context.Context, params *types.Parameters) error
}
