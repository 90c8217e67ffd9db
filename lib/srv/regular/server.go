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

// Package regular implements the SSH Server Frontend: the half of a
// proxied session that terminates the inbound SSH connection, resolves
// the connecting selector to a (user, target) pair, drives authentication
// against the Credential Store and Policy Engine, and pairs accepted
// channels with the SSH Client Frontend via the Session Core.
package regular

import (
	"context"
	"net"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/auth"
	"github.com/warpgate-labs/warpgate/lib/events"
	"github.com/warpgate-labs/warpgate/lib/srv"
	"github.com/warpgate-labs/warpgate/lib/srv/forward"
)

var connectingToTarget = prometheus.NewCounter(prometheus.CounterOpts{
	Name: warpgate.MetricConnectToTargetAttempts,
	Help: "Number of SSH connection attempts to a target.",
})

var failedConnectingToTarget = prometheus.NewCounter(prometheus.CounterOpts{
	Name: warpgate.MetricFailedConnectToTargetAttempts,
	Help: "Number of failed SSH connection attempts to a target.",
})

func init() {
	prometheus.MustRegister(connectingToTarget, failedConnectingToTarget)
}

// TargetBackend is the subset of the Persistence Gateway the frontend
// needs to resolve a selector's target name into a Target.
type TargetBackend interface {
	GetTarget(ctx context.Context, id string) (*types.Target, error)
	GetTargetByName(ctx context.Context, name string) (*types.Target, error)
}

// TicketBackend is the subset of the Persistence Gateway the frontend
// needs to redeem ticket logins.
type TicketBackend interface {
	GetTicketBySecret(ctx context.Context, secret string) (*types.Ticket, error)
	UpsertTicket(ctx context.Context, ticket *types.Ticket) error
}

// UserBackend is the subset of the Persistence Gateway the frontend needs
// to resolve a user's assigned roles for file-transfer policy.
type UserBackend interface {
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
}

// RoleBackend is the subset of the Persistence Gateway the frontend needs
// to resolve a role's file-transfer defaults.
type RoleBackend interface {
	GetRole(ctx context.Context, id string) (*types.Role, error)
}

// Config configures a Server.
type Config struct {
	HostSigners []ssh.Signer

	Credentials     *auth.CredentialStore
	AuthStates      *auth.AuthStateStore
	LoginProtection *auth.LoginProtectionService

	Targets TargetBackend
	Tickets TicketBackend
	Users   UserBackend
	Roles   RoleBackend

	Registry    *srv.Registry
	RateLimiter *srv.RateLimiterStack
	Forward     forward.Config

	// Emitter, if set, receives an audit record when each session starts
	// and when it ends. Recorder, if set, additionally persists a
	// JSONL frame for every byte pumped in either direction; both are
	// optional, per SPEC_FULL's "optional session recording".
	Emitter  *events.Emitter
	Recorder *events.Recorder

	Clock          clockwork.Clock
	RejectionDelay time.Duration

	Log *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *Config) CheckAndSetDefaults() error {
	if len(c.HostSigners) == 0 {
		return trace.BadParameter("ssh server: at least one host signer is required")
	}
	if c.Credentials == nil || c.AuthStates == nil || c.LoginProtection == nil {
		return trace.BadParameter("ssh server: credentials, auth states and login protection are required")
	}
	if c.Targets == nil || c.Tickets == nil {
		return trace.BadParameter("ssh server: targets and tickets backends are required")
	}
	if c.Users == nil || c.Roles == nil {
		return trace.BadParameter("ssh server: users and roles backends are required")
	}
	if c.Registry == nil {
		return trace.BadParameter("ssh server: registry is required")
	}
	if c.RateLimiter == nil {
		c.RateLimiter = srv.NewRateLimiterStack(nil)
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.RejectionDelay == 0 {
		c.RejectionDelay = defaultRejectionDelay
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentSSHServer)
	}
	return nil
}

// Server terminates inbound SSH connections and proxies their channels to
// the selected target via the SSH Client Frontend.
type Server struct {
	cfg     Config
	sshCfg  *ssh.ServerConfig
	tracker *authTracker
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	s := &Server{cfg: cfg, tracker: newAuthTracker()}

	sshCfg := &ssh.ServerConfig{
		NoClientAuthCallback:        s.noClientAuthCallback,
		PublicKeyCallback:           s.publicKeyCallback,
		PasswordCallback:            s.passwordCallback,
		KeyboardInteractiveCallback: s.keyboardInteractiveCallback,
		AuthLogCallback:             s.authLogCallback,
	}
	for _, signer := range cfg.HostSigners {
		sshCfg.AddHostKey(signer)
	}
	s.sshCfg = sshCfg
	return s, nil
}

// Serve accepts connections from ln until ctx is canceled or the listener
// errors.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return trace.Wrap(err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, nConn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(nConn, s.sshCfg)
	if err != nil {
		s.cfg.Log.Debugf("handshake failed from %s: %v", nConn.RemoteAddr(), err)
		nConn.Close()
		return
	}
	defer sconn.Close()
	defer s.tracker.forget(sconn)

	go ssh.DiscardRequests(reqs)

	username := sconn.Permissions.Extensions[permBoundUsername]
	targetName := sconn.Permissions.Extensions[permBoundTarget]
	ticketID := sconn.Permissions.Extensions[permBoundTicket]

	s.serveChannels(ctx, sconn, chans, username, targetName, ticketID)
}
