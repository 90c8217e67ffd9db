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

package regular

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate/api/types"
)

// defaultRejectionDelay is the RejectionDelay used when Config leaves it
// zero; the delay is imposed before a failed credential check is reported
// to the client, slowing down credential-stuffing attempts.
const defaultRejectionDelay = time.Second

// permBoundUsername and permBoundTarget are the ssh.Permissions.Extensions
// keys a successful auth callback stashes the resolved selector into, for
// the channel layer to read back out of the server connection.
const (
	permBoundUsername = "warpgate-username"
	permBoundTarget   = "warpgate-target"
	permBoundTicket   = "warpgate-ticket"
)

// attempt tracks one connection's authentication progress across however
// many PublicKeyCallback/PasswordCallback/KeyboardInteractiveCallback
// round trips the client makes, keyed by the connection's stable session
// ID.
type attempt struct {
	sel     selector
	stateID string

	mu              sync.Mutex
	validatedPublic map[string]bool // credential IDs already counted
}

// authTracker hands out and looks up per-connection attempts.
type authTracker struct {
	mu       sync.Mutex
	attempts map[string]*attempt
}

func newAuthTracker() *authTracker {
	return &authTracker{attempts: make(map[string]*attempt)}
}

func (t *authTracker) get(conn ssh.ConnMetadata) *attempt {
	key := string(conn.SessionID())
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.attempts[key]
	if !ok {
		a = &attempt{sel: parseSelector(conn.User()), validatedPublic: make(map[string]bool)}
		t.attempts[key] = a
	}
	return a
}

func (t *authTracker) forget(conn ssh.ConnMetadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.attempts, string(conn.SessionID()))
}

// noClientAuthCallback services the ticket login path: the SSH "user"
// field carries a ticket secret directly, so a bare "none" authentication
// request is enough to prove intent once the ticket itself is validated.
func (s *Server) noClientAuthCallback(conn ssh.ConnMetadata) (*ssh.Permissions, error) {
	a := s.tracker.get(conn)
	if !a.sel.IsTicket {
		return nil, trace.AccessDenied("authentication required")
	}

	ctx := context.Background()
	ticket, err := s.cfg.Tickets.GetTicketBySecret(ctx, a.sel.TicketSecret)
	if err != nil {
		s.cfg.Log.WithError(err).Debug("ticket lookup failed")
		return nil, trace.AccessDenied("invalid ticket")
	}
	if !ticket.Usable(s.cfg.Clock.Now()) {
		return nil, trace.AccessDenied("ticket is expired or exhausted")
	}
	ticket.Consume()
	if err := s.cfg.Tickets.UpsertTicket(ctx, ticket); err != nil {
		return nil, trace.Wrap(err)
	}

	target, err := s.cfg.Targets.GetTarget(ctx, ticket.TargetID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return &ssh.Permissions{Extensions: map[string]string{
		permBoundUsername: ticket.Username,
		permBoundTarget:    target.Name,
		permBoundTicket:    ticket.ID,
	}}, nil
}

// publicKeyCallback is invoked once as a query (no signature yet, the
// library only cares whether the key is acceptable) and again, by the
// same signature, after the client's signature has already been verified
// cryptographically by the ssh package.
func (s *Server) publicKeyCallback(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	a := s.tracker.get(conn)
	if a.sel.IsTicket {
		return nil, trace.AccessDenied("ticket users authenticate via the ticket itself")
	}

	credID, err := s.cfg.Credentials.ValidatePublicKey(context.Background(), a.sel.Username, string(key.Marshal()))
	if err != nil {
		return s.fail(conn, a, err)
	}

	// Called twice per key (query, then post-signature); both times the
	// outcome for policy purposes is identical.
	a.mu.Lock()
	a.validatedPublic[credID] = true
	a.mu.Unlock()
	return s.succeedMethod(conn, a, types.CredentialKindPublicKey)
}

// passwordCallback validates a presented password.
func (s *Server) passwordCallback(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
	a := s.tracker.get(conn)
	if a.sel.IsTicket {
		return nil, trace.AccessDenied("ticket users authenticate via the ticket itself")
	}
	_, err := s.cfg.Credentials.ValidatePassword(context.Background(), a.sel.Username, string(password))
	if err != nil {
		return s.fail(conn, a, err)
	}
	return s.succeedMethod(conn, a, types.CredentialKindPassword)
}

// keyboardInteractiveCallback drives a one-question-at-a-time challenge
// for whichever credential kind the policy still needs (in practice,
// OTP), since the OTP code itself has no independent SSH auth method.
func (s *Server) keyboardInteractiveCallback(conn ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
	a := s.tracker.get(conn)
	if a.sel.IsTicket {
		return nil, trace.AccessDenied("ticket users authenticate via the ticket itself")
	}

	answers, err := challenge("", "", []string{"One-time code: "}, []bool{true})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if len(answers) != 1 {
		return nil, trace.BadParameter("expected one answer, got %d", len(answers))
	}

	_, err = s.cfg.Credentials.ValidateOTP(context.Background(), a.sel.Username, answers[0])
	if err != nil {
		return s.fail(conn, a, err)
	}
	return s.succeedMethod(conn, a, types.CredentialKindOTP)
}

// succeedMethod records the validated kind against the connection's
// AuthState and re-evaluates the policy. A satisfied policy returns
// success permissions; an unsatisfied one reports a partial success so
// the client is prompted for another method. A username or source
// address that is currently locked out is rejected first, even though
// the credential itself was valid.
func (s *Server) succeedMethod(conn ssh.ConnMetadata, a *attempt, kind types.CredentialKind) (*ssh.Permissions, error) {
	ctx := context.Background()

	if err := s.cfg.LoginProtection.CheckAllowed(a.sel.Username, conn.RemoteAddr().String()); err != nil {
		return nil, trace.Wrap(err)
	}

	a.mu.Lock()
	if a.stateID == "" {
		state := s.cfg.AuthStates.Create(a.sel.Username, types.ProtocolSSH)
		a.stateID = state.ID
	}
	stateID := a.stateID
	a.mu.Unlock()

	if err := s.cfg.AuthStates.AddValidated(stateID, kind); err != nil {
		return nil, trace.Wrap(err)
	}
	state, err := s.cfg.AuthStates.Get(stateID)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	policy, err := s.cfg.Credentials.GetCredentialPolicy(ctx, a.sel.Username)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	result := policy.Evaluate(types.ProtocolSSH, state.Validated)
	if !result.Ok() {
		// Not yet satisfied: reject this method so the client is prompted
		// to try another one. The still-needed kinds live in result.Missing
		// for the next keyboard-interactive round, if any.
		return nil, trace.AccessDenied("additional authentication required: %v", result.Missing.Slice())
	}

	s.cfg.LoginProtection.RecordSuccess(a.sel.Username, conn.RemoteAddr().String())
	_ = s.cfg.AuthStates.Complete(stateID, "success")
	return &ssh.Permissions{Extensions: map[string]string{
		permBoundUsername: a.sel.Username,
		permBoundTarget:   a.sel.TargetName,
	}}, nil
}

// fail records the failed attempt against the Login-Protection service
// and returns the rejection, imposing the configured delay first.
func (s *Server) fail(conn ssh.ConnMetadata, a *attempt, cause error) (*ssh.Permissions, error) {
	sourceAddr := conn.RemoteAddr().String()
	if err := s.cfg.LoginProtection.CheckAllowed(a.sel.Username, sourceAddr); err != nil {
		return nil, err
	}
	s.cfg.LoginProtection.RecordFailure(a.sel.Username, sourceAddr)
	time.Sleep(s.cfg.RejectionDelay)
	return nil, trace.Wrap(cause)
}

// authLogCallback records every attempt (success or failure) for audit.
func (s *Server) authLogCallback(conn ssh.ConnMetadata, method string, err error) {
	fields := fmt.Sprintf("user=%s method=%s", conn.User(), method)
	if err != nil {
		s.cfg.Log.Debugf("auth attempt failed: %s: %v", fields, err)
		return
	}
	s.cfg.Log.Debugf("auth attempt accepted: %s", fields)
}
