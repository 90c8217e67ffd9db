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
	"testing"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
)

func newTestAuthStateStore(t *testing.T, clock clockwork.Clock) *AuthStateStore {
	t.Helper()
	store, err := NewAuthStateStore(AuthStateStoreConfig{Clock: clock, VacuumInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestAuthStateStoreCreateGet(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestAuthStateStore(t, clock)

	state := store.Create("alice", types.ProtocolSSH)
	require.Equal(t, AuthStatePending, state.Status)

	got, err := store.Get(state.ID)
	require.NoError(t, err)
	require.Equal(t, state.ID, got.ID)
}

func TestAuthStateStoreGetExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, err := NewAuthStateStore(AuthStateStoreConfig{Clock: clock, Timeout: time.Minute, VacuumInterval: time.Hour})
	require.NoError(t, err)
	defer store.Close()

	state := store.Create("alice", types.ProtocolSSH)
	clock.Advance(2 * time.Minute)

	_, err = store.Get(state.ID)
	require.Error(t, err)
	require.True(t, trace.IsNotFound(err))
}

func TestAuthStateStoreCompleteNotifiesSubscribers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestAuthStateStore(t, clock)

	state := store.Create("alice", types.ProtocolSSH)
	sub, err := store.Subscribe(state.ID)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		<-sub
		close(done)
	}()

	require.NoError(t, store.Complete(state.ID, AuthStateSuccess))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified")
	}

	got, err := store.Get(state.ID)
	require.NoError(t, err)
	require.Equal(t, AuthStateSuccess, got.Status)
}

func TestAuthStateStoreVacuumRemovesExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store, err := NewAuthStateStore(AuthStateStoreConfig{Clock: clock, Timeout: time.Minute, VacuumInterval: time.Hour})
	require.NoError(t, err)
	defer store.Close()

	store.Create("alice", types.ProtocolSSH)
	require.Equal(t, 1, store.Size())

	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, store.Vacuum())
	require.Equal(t, 0, store.Size())
}

func TestAuthStateStoreAddValidated(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestAuthStateStore(t, clock)

	state := store.Create("alice", types.ProtocolSSH)
	require.NoError(t, store.AddValidated(state.ID, types.CredentialKindPassword))

	got, err := store.Get(state.ID)
	require.NoError(t, err)
	require.True(t, got.Validated.Has(types.CredentialKindPassword))
}
