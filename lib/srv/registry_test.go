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
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/backend/memory"
)

func TestRegistryOpenAndClose(t *testing.T) {
	b := memory.New()
	clock := clockwork.NewFakeClock()
	reg, err := NewRegistry(RegistryConfig{Backend: b, Clock: clock})
	require.NoError(t, err)

	core, err := reg.Open(context.Background(), types.ProtocolSSH, "10.0.0.1:1234",
		types.UserSnapshot{Username: "alice"}, types.TargetSnapshot{Name: "db-1", Kind: types.TargetKindSSH}, "")
	require.NoError(t, err)
	require.Equal(t, 1, reg.ActiveCount())

	got, err := reg.Get(core.Session().ID)
	require.NoError(t, err)
	require.Same(t, core, got)

	require.NoError(t, reg.Close(context.Background(), core.Session().ID))
	require.Equal(t, 0, reg.ActiveCount())
	require.False(t, core.Session().Active())

	sessions, err := b.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndedAt)
}

func TestCoreEventBus(t *testing.T) {
	core := newCore(&types.Session{ID: "s1"})
	ctx := context.Background()

	require.NoError(t, core.Emit(ctx, RCEvent{Kind: RCEventChannelOpened, ChannelID: 0}))
	select {
	case ev := <-core.Events():
		require.Equal(t, RCEventChannelOpened, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, core.Command(ctx, RCCommand{Kind: RCCommandTerminate}))
	select {
	case cmd := <-core.Commands():
		require.Equal(t, RCCommandTerminate, cmd.Kind)
	case <-time.After(time.Second):
		t.Fatal("command not delivered")
	}
}

func TestCoreEmitAfterCloseFails(t *testing.T) {
	core := newCore(&types.Session{ID: "s1"})
	core.closeOnce()

	err := core.Emit(context.Background(), RCEvent{Kind: RCEventDataIn})
	require.Error(t, err)
}
