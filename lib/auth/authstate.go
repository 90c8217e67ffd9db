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

package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
)

// AuthStateStatus is the lifecycle stage of an in-progress authentication
// attempt.
type AuthStateStatus string

const (
	// AuthStatePending means the state is waiting on more credentials.
	AuthStatePending AuthStateStatus = "pending"
	// AuthStateSuccess means the policy was satisfied.
	AuthStateSuccess AuthStateStatus = "success"
	// AuthStateFailed means the attempt was rejected outright (e.g.
	// lockout, unknown user).
	AuthStateFailed AuthStateStatus = "failed"
)

// AuthState tracks one in-progress, possibly multi-step authentication
// attempt: the protocol it's for, which credential kinds have been
// validated so far, and its expiry.
type AuthState struct {
	ID       string
	Username string
	Protocol types.Protocol

	Validated types.CredentialKindSet

	Status AuthStateStatus

	CreatedAt time.Time
	ExpiresAt time.Time

	// subscribers are notified (closed channel) whenever Status changes.
	subscribers []chan struct{}
}

// expired reports whether the state has aged past its timeout as of now.
func (s *AuthState) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *AuthState) notify() {
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

// AuthStateStoreConfig configures an AuthStateStore.
type AuthStateStoreConfig struct {
	Clock clockwork.Clock
	// Timeout is how long a state lives after creation before it counts as
	// expired and vacuum reaps it, whatever its status; adding validated
	// credentials does not extend it. Defaults to 10 minutes.
	Timeout time.Duration
	// VacuumInterval is how often the background reaper sweeps expired
	// states. Defaults to 60 seconds.
	VacuumInterval time.Duration

	Log *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *AuthStateStoreConfig) CheckAndSetDefaults() error {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Minute
	}
	if c.VacuumInterval == 0 {
		c.VacuumInterval = 60 * time.Second
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentAuth)
	}
	return nil
}

// AuthStateStore is the process-wide registry of in-progress multi-step
// authentication attempts, keyed by an opaque id the client carries
// between steps (e.g. across keyboard-interactive round trips).
type AuthStateStore struct {
	cfg AuthStateStoreConfig

	mu     sync.Mutex
	states map[string]*AuthState

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewAuthStateStore creates a store and starts its background vacuum loop.
func NewAuthStateStore(cfg AuthStateStoreConfig) (*AuthStateStore, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	s := &AuthStateStore{
		cfg:     cfg,
		states:  make(map[string]*AuthState),
		closeCh: make(chan struct{}),
	}
	go s.vacuumLoop()
	return s, nil
}

// Create starts tracking a new pending auth state for username/protocol
// and returns it.
func (s *AuthStateStore) Create(username string, protocol types.Protocol) *AuthState {
	now := s.cfg.Clock.Now()
	state := &AuthState{
		ID:        uuid.NewString(),
		Username:  username,
		Protocol:  protocol,
		Validated: types.CredentialKindSet{},
		Status:    AuthStatePending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Timeout),
	}
	s.mu.Lock()
	s.states[state.ID] = state
	s.mu.Unlock()
	return state
}

// Get returns the state with the given id, or NotFound if it doesn't
// exist or has already expired.
func (s *AuthStateStore) Get(id string) (*AuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, trace.NotFound("auth state %q not found", id)
	}
	if state.expired(s.cfg.Clock.Now()) {
		delete(s.states, id)
		return nil, trace.NotFound("auth state %q not found", id)
	}
	return state, nil
}

// Subscribe returns a channel that is closed the next time the state's
// Status changes (or immediately, if it has already reached a terminal
// status). Vacuum also closes it when it reaps an expired state; the
// Status is then left pending.
func (s *AuthStateStore) Subscribe(id string) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return nil, trace.NotFound("auth state %q not found", id)
	}
	ch := make(chan struct{})
	if state.Status != AuthStatePending {
		close(ch)
		return ch, nil
	}
	state.subscribers = append(state.subscribers, ch)
	return ch, nil
}

// Complete sets a pending state's status to success or failed and wakes
// every subscriber. Completing an already-terminal state is a no-op.
func (s *AuthStateStore) Complete(id string, status AuthStateStatus) error {
	if status == AuthStatePending {
		return trace.BadParameter("auth state: cannot complete into pending status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return trace.NotFound("auth state %q not found", id)
	}
	if state.Status != AuthStatePending {
		return nil
	}
	state.Status = status
	state.notify()
	return nil
}

// AddValidated records a freshly validated credential kind against a
// pending state.
func (s *AuthStateStore) AddValidated(id string, kind types.CredentialKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return trace.NotFound("auth state %q not found", id)
	}
	state.Validated.Add(kind)
	return nil
}

// Vacuum removes every expired state immediately, returning how many were
// removed. Called periodically by the background loop, and exposed for
// tests that want to force a sweep without waiting on the clock.
func (s *AuthStateStore) Vacuum() int {
	now := s.cfg.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, state := range s.states {
		if state.expired(now) {
			state.notify()
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

// Size reports the number of live (non-vacuumed) states, for the
// MetricAuthStateStoreSize gauge.
func (s *AuthStateStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Close stops the background vacuum loop.
func (s *AuthStateStore) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
}

func (s *AuthStateStore) vacuumLoop() {
	ticker := s.cfg.Clock.NewTicker(s.cfg.VacuumInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.Chan():
			removed := s.Vacuum()
			if removed > 0 {
				s.cfg.Log.Debugf("vacuumed %d expired auth states", removed)
			}
		}
	}
}
