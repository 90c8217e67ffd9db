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

import "github.com/gravitational/trace"

// TargetKind discriminates the protocol a Target speaks.
type TargetKind string

const (
	TargetKindSSH      TargetKind = "ssh"
	TargetKindMySQL    TargetKind = "mysql"
	TargetKindPostgres TargetKind = "postgres"
	TargetKindHTTP     TargetKind = "http"
	// TargetKindWebAdmin is the Warpgate instance's own admin surface,
	// reachable like any other target but never proxied over TCP.
	TargetKindWebAdmin TargetKind = "web_admin"
)

// Target is a single destination a session may be routed to.
type Target struct {
	ID          string
	Name        string
	Kind        TargetKind
	Description string

	Options TargetOptions

	// RateLimitBytesPerSecond caps throughput to this target, independent
	// of any user-level or global cap; the Rate-Limiter Stack applies the
	// tightest of the three.
	RateLimitBytesPerSecond *int64

	// FileTransferOverride, when non-nil, overrides a reaching role's
	// FileTransferDefaults for sessions against this target.
	FileTransferOverride *FileTransferPolicy
}

// TargetOptions is the kind-specific connection info. Exactly the field
// matching Kind is populated.
type TargetOptions struct {
	SSH      *SSHTargetOptions
	MySQL    *DatabaseTargetOptions
	Postgres *DatabaseTargetOptions
	HTTP     *HTTPTargetOptions
}

// SSHTargetOptions describes how to reach an SSH target.
type SSHTargetOptions struct {
	Host     string
	Port     int
	Username string

	// AuthKind selects how the SSH Client Frontend authenticates to this
	// target: "password" or "public_key".
	AuthKind string
	Password string
	// PrivateKeyPEM is used when AuthKind is "public_key".
	PrivateKeyPEM string
}

// DatabaseTargetOptions describes how to reach a MySQL or Postgres target.
type DatabaseTargetOptions struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	TLSMode  string
}

// HTTPTargetOptions describes how to reach an HTTP target.
type HTTPTargetOptions struct {
	BaseURL string
	// TLSVerify disables certificate verification when false; defaults to
	// true via CheckAndSetDefaults so an empty struct is the safe option.
	TLSVerify *bool
}

// CheckAndSetDefaults validates the target and fills safe defaults.
func (t *Target) CheckAndSetDefaults() error {
	if t.Name == "" {
		return trace.BadParameter("target: name is required")
	}
	switch t.Kind {
	case TargetKindSSH:
		if t.Options.SSH == nil {
			return trace.BadParameter("target %q: ssh options are required", t.Name)
		}
		if t.Options.SSH.Host == "" {
			return trace.BadParameter("target %q: ssh host is required", t.Name)
		}
		if t.Options.SSH.Port == 0 {
			t.Options.SSH.Port = 22
		}
	case TargetKindMySQL, TargetKindPostgres:
		opts := t.Options.MySQL
		if t.Kind == TargetKindPostgres {
			opts = t.Options.Postgres
		}
		if opts == nil {
			return trace.BadParameter("target %q: database options are required", t.Name)
		}
		if opts.Host == "" {
			return trace.BadParameter("target %q: database host is required", t.Name)
		}
	case TargetKindHTTP:
		if t.Options.HTTP == nil {
			return trace.BadParameter("target %q: http options are required", t.Name)
		}
		if t.Options.HTTP.TLSVerify == nil {
			verify := true
			t.Options.HTTP.TLSVerify = &verify
		}
	case TargetKindWebAdmin:
		// no options
	default:
		return trace.BadParameter("target %q: unknown kind %q", t.Name, t.Kind)
	}
	return nil
}

// TargetSnapshot is the small, immutable projection of a Target captured
// into a Session at bind time, mirroring UserSnapshot.
type TargetSnapshot struct {
	Name string
	Kind TargetKind
}

// NewTargetSnapshot projects a Target into a TargetSnapshot.
func NewTargetSnapshot(t *Target) TargetSnapshot {
	return TargetSnapshot{Name: t.Name, Kind: t.Kind}
}
