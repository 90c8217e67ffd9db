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

// Package sql implements the Persistence Gateway on top of database/sql,
// supporting both Postgres (via jackc/pgx's stdlib driver) and sqlite
// (via mattn/go-sqlite3) as the durable store backing a Warpgate
// instance. Rows are addressed by id and their payload is stored as a
// single JSON column; this keeps one code path working against both
// engines without hand-maintaining two dialects of DDL/DML.
package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v4/stdlib"
	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/api/types"
)

// Driver selects which registered database/sql driver to open.
type Driver string

const (
	DriverPostgres Driver = "pgx"
	DriverSQLite   Driver = "sqlite3"
)

// Backend is a database/sql-backed implementation of backend.Backend.
type Backend struct {
	db     *sql.DB
	driver Driver
}

var tables = []string{"users", "roles", "targets", "target_groups", "sessions", "tickets", "known_hosts", "recordings", "log_entries", "api_tokens", "parameters"}

// Open connects to dsn using driver and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Backend, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	b := &Backend{db: db, driver: driver}
	if err := b.migrate(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	for _, table := range tables {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)`, table)
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

func newID() string { return uuid.NewString() }

func (b *Backend) getByID(ctx context.Context, table, id string, out interface{}) error {
	var data string
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return trace.NotFound("%s %q not found", table, id)
	}
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(json.Unmarshal([]byte(data), out))
}

func (b *Backend) upsert(ctx context.Context, table, id string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return trace.Wrap(err)
	}
	_, err = b.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`, table),
		id, string(data))
	return trace.Wrap(err)
}

func (b *Backend) delete(ctx context.Context, table, id string) error {
	res, err := b.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return trace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return trace.Wrap(err)
	}
	if n == 0 {
		return trace.NotFound("%s %q not found", table, id)
	}
	return nil
}

func (b *Backend) listAll(ctx context.Context, table string, each func(data string) error) error {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s`, table))
	if err != nil {
		return trace.Wrap(err)
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return trace.Wrap(err)
		}
		if err := each(data); err != nil {
			return trace.Wrap(err)
		}
	}
	return trace.Wrap(rows.Err())
}

// --- users ---

func (b *Backend) GetUserByID(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	if err := b.getByID(ctx, "users", id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (b *Backend) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	var found *types.User
	err := b.listAll(ctx, "users", func(data string) error {
		var u types.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return err
		}
		if u.Username == username {
			found = &u
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("user %q not found", username)
	}
	return found, nil
}

func (b *Backend) GetUserBySSO(ctx context.Context, provider, email string) (*types.User, error) {
	var found *types.User
	err := b.listAll(ctx, "users", func(data string) error {
		var u types.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return err
		}
		for _, cred := range u.Credentials {
			if cred.SSO != nil && cred.SSO.Provider == provider && cred.SSO.Email == email {
				found = &u
			}
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("no user linked to sso identity %s:%s", provider, email)
	}
	return found, nil
}

func (b *Backend) ListUsers(ctx context.Context) ([]*types.User, error) {
	var out []*types.User
	err := b.listAll(ctx, "users", func(data string) error {
		var u types.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return err
		}
		out = append(out, &u)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertUser(ctx context.Context, user *types.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	return b.upsert(ctx, "users", user.ID, user)
}

func (b *Backend) DeleteUser(ctx context.Context, id string) error {
	return b.delete(ctx, "users", id)
}

// --- credentials (stored inline on the owning user row) ---

func (b *Backend) AddCredential(ctx context.Context, userID string, cred *types.Credential) error {
	u, err := b.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if cred.ID == "" {
		cred.ID = newID()
	}
	cred.UserID = userID
	u.Credentials = append(u.Credentials, *cred)
	return b.UpsertUser(ctx, u)
}

func (b *Backend) RemoveCredential(ctx context.Context, userID, credentialID string) error {
	u, err := b.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	for i, c := range u.Credentials {
		if c.ID == credentialID {
			u.Credentials = append(u.Credentials[:i], u.Credentials[i+1:]...)
			return b.UpsertUser(ctx, u)
		}
	}
	return trace.NotFound("credential %q not found", credentialID)
}

// --- roles ---

func (b *Backend) GetRole(ctx context.Context, id string) (*types.Role, error) {
	var r types.Role
	if err := b.getByID(ctx, "roles", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *Backend) ListRoles(ctx context.Context) ([]*types.Role, error) {
	var out []*types.Role
	err := b.listAll(ctx, "roles", func(data string) error {
		var r types.Role
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return err
		}
		out = append(out, &r)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertRole(ctx context.Context, role *types.Role) error {
	if role.ID == "" {
		role.ID = newID()
	}
	return b.upsert(ctx, "roles", role.ID, role)
}

func (b *Backend) DeleteRole(ctx context.Context, id string) error {
	return b.delete(ctx, "roles", id)
}

// --- targets ---

func (b *Backend) GetTarget(ctx context.Context, id string) (*types.Target, error) {
	var t types.Target
	if err := b.getByID(ctx, "targets", id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (b *Backend) GetTargetByName(ctx context.Context, name string) (*types.Target, error) {
	var found *types.Target
	err := b.listAll(ctx, "targets", func(data string) error {
		var t types.Target
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		if t.Name == name {
			found = &t
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("target %q not found", name)
	}
	return found, nil
}

func (b *Backend) ListTargets(ctx context.Context) ([]*types.Target, error) {
	var out []*types.Target
	err := b.listAll(ctx, "targets", func(data string) error {
		var t types.Target
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		out = append(out, &t)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertTarget(ctx context.Context, target *types.Target) error {
	if target.ID == "" {
		target.ID = newID()
	}
	return b.upsert(ctx, "targets", target.ID, target)
}

func (b *Backend) DeleteTarget(ctx context.Context, id string) error {
	return b.delete(ctx, "targets", id)
}

// --- target groups ---

func (b *Backend) GetTargetGroup(ctx context.Context, id string) (*types.TargetGroup, error) {
	var g types.TargetGroup
	if err := b.getByID(ctx, "target_groups", id, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (b *Backend) ListTargetGroups(ctx context.Context) ([]*types.TargetGroup, error) {
	var out []*types.TargetGroup
	err := b.listAll(ctx, "target_groups", func(data string) error {
		var g types.TargetGroup
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return err
		}
		out = append(out, &g)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertTargetGroup(ctx context.Context, group *types.TargetGroup) error {
	if group.ID == "" {
		group.ID = newID()
	}
	return b.upsert(ctx, "target_groups", group.ID, group)
}

func (b *Backend) DeleteTargetGroup(ctx context.Context, id string) error {
	return b.delete(ctx, "target_groups", id)
}

// --- sessions ---

func (b *Backend) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var s types.Session
	if err := b.getByID(ctx, "sessions", id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (b *Backend) ListSessions(ctx context.Context) ([]*types.Session, error) {
	var out []*types.Session
	err := b.listAll(ctx, "sessions", func(data string) error {
		var s types.Session
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			return err
		}
		out = append(out, &s)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertSession(ctx context.Context, session *types.Session) error {
	if session.ID == "" {
		return trace.BadParameter("session: id is required")
	}
	return b.upsert(ctx, "sessions", session.ID, session)
}

// --- tickets ---

func (b *Backend) GetTicketBySecret(ctx context.Context, secret string) (*types.Ticket, error) {
	var found *types.Ticket
	err := b.listAll(ctx, "tickets", func(data string) error {
		var t types.Ticket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		if t.Secret == secret {
			found = &t
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("ticket not found")
	}
	return found, nil
}

func (b *Backend) ListTickets(ctx context.Context) ([]*types.Ticket, error) {
	var out []*types.Ticket
	err := b.listAll(ctx, "tickets", func(data string) error {
		var t types.Ticket
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		out = append(out, &t)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertTicket(ctx context.Context, ticket *types.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = newID()
	}
	return b.upsert(ctx, "tickets", ticket.ID, ticket)
}

func (b *Backend) DeleteTicket(ctx context.Context, id string) error {
	return b.delete(ctx, "tickets", id)
}

// --- known hosts ---

func (b *Backend) GetKnownHost(ctx context.Context, host string, port int, keyType string) (*types.KnownHost, error) {
	identity := fmt.Sprintf("%s:%d:%s", host, port, keyType)
	var found *types.KnownHost
	err := b.listAll(ctx, "known_hosts", func(data string) error {
		var kh types.KnownHost
		if err := json.Unmarshal([]byte(data), &kh); err != nil {
			return err
		}
		if kh.Identity() == identity {
			found = &kh
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("known host %q not found", identity)
	}
	return found, nil
}

func (b *Backend) ListKnownHosts(ctx context.Context) ([]*types.KnownHost, error) {
	var out []*types.KnownHost
	err := b.listAll(ctx, "known_hosts", func(data string) error {
		var kh types.KnownHost
		if err := json.Unmarshal([]byte(data), &kh); err != nil {
			return err
		}
		out = append(out, &kh)
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertKnownHost(ctx context.Context, kh *types.KnownHost) error {
	if kh.ID == "" {
		kh.ID = newID()
	}
	return b.upsert(ctx, "known_hosts", kh.ID, kh)
}

func (b *Backend) DeleteKnownHost(ctx context.Context, id string) error {
	return b.delete(ctx, "known_hosts", id)
}

// --- recordings ---

func (b *Backend) GetRecording(ctx context.Context, id string) (*types.Recording, error) {
	var r types.Recording
	if err := b.getByID(ctx, "recordings", id, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (b *Backend) ListRecordingsBySession(ctx context.Context, sessionID string) ([]*types.Recording, error) {
	var out []*types.Recording
	err := b.listAll(ctx, "recordings", func(data string) error {
		var r types.Recording
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return err
		}
		if r.SessionID == sessionID {
			out = append(out, &r)
		}
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertRecording(ctx context.Context, rec *types.Recording) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	return b.upsert(ctx, "recordings", rec.ID, rec)
}

// --- log entries ---

func (b *Backend) AppendLogEntry(ctx context.Context, entry *types.LogEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	return b.upsert(ctx, "log_entries", entry.ID, entry)
}

func (b *Backend) ListLogEntriesBySession(ctx context.Context, sessionID string) ([]*types.LogEntry, error) {
	var out []*types.LogEntry
	err := b.listAll(ctx, "log_entries", func(data string) error {
		var e types.LogEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return err
		}
		if e.SessionID == sessionID {
			out = append(out, &e)
		}
		return nil
	})
	return out, trace.Wrap(err)
}

// --- api tokens ---

func (b *Backend) GetApiTokenByHash(ctx context.Context, hash string) (*types.ApiToken, error) {
	var found *types.ApiToken
	err := b.listAll(ctx, "api_tokens", func(data string) error {
		var t types.ApiToken
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		if t.Hash == hash {
			found = &t
		}
		return nil
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if found == nil {
		return nil, trace.NotFound("api token not found")
	}
	return found, nil
}

func (b *Backend) ListApiTokensByUser(ctx context.Context, userID string) ([]*types.ApiToken, error) {
	var out []*types.ApiToken
	err := b.listAll(ctx, "api_tokens", func(data string) error {
		var t types.ApiToken
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return err
		}
		if t.UserID == userID {
			out = append(out, &t)
		}
		return nil
	})
	return out, trace.Wrap(err)
}

func (b *Backend) UpsertApiToken(ctx context.Context, token *types.ApiToken) error {
	if token.ID == "" {
		token.ID = newID()
	}
	return b.upsert(ctx, "api_tokens", token.ID, token)
}

func (b *Backend) DeleteApiToken(ctx context.Context, id string) error {
	return b.delete(ctx, "api_tokens", id)
}

// --- parameters ---

const parametersRowID = "singleton"

func (b *Backend) GetParameters(ctx context.Context) (*types.Parameters, error) {
	var p types.Parameters
	err := b.getByID(ctx, "parameters", parametersRowID, &p)
	if trace.IsNotFound(err) {
		return &types.Parameters{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *Backend) SetParameters(ctx context.Context, params *types.Parameters) error {
	return b.upsert(ctx, "parameters", parametersRowID, params)
}
