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

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestCalculateBlockDuration(t *testing.T) {
	require.Equal(t, time.Duration(0), calculateBlockDuration(0))
	require.Equal(t, time.Second, calculateBlockDuration(1))
	require.Equal(t, 2*time.Second, calculateBlockDuration(2))
	require.Equal(t, 4*time.Second, calculateBlockDuration(3))
	require.Equal(t, maxLockoutDuration, calculateBlockDuration(30))
}

func TestLoginProtectionServiceLocksOutAfterFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, err := NewLoginProtectionService(LoginProtectionConfig{Clock: clock})
	require.NoError(t, err)

	require.NoError(t, svc.CheckAllowed("alice", "10.0.0.1"))

	svc.RecordFailure("alice", "10.0.0.1")
	require.Error(t, svc.CheckAllowed("alice", "10.0.0.1"))
	require.Error(t, svc.CheckAllowed("alice", "10.0.0.2"))
	require.NoError(t, svc.CheckAllowed("bob", "10.0.0.2"))

	clock.Advance(2 * time.Second)
	require.NoError(t, svc.CheckAllowed("alice", "10.0.0.1"))
}

func TestLoginProtectionServiceBackoffGrows(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, err := NewLoginProtectionService(LoginProtectionConfig{Clock: clock})
	require.NoError(t, err)

	svc.RecordFailure("alice", "10.0.0.1")
	svc.RecordFailure("alice", "10.0.0.1")
	status := svc.UserStatus("alice")
	require.True(t, status.Blocked)
	require.Equal(t, 2, status.ConsecutiveFailures)

	clock.Advance(2 * time.Second)
	require.Error(t, svc.CheckAllowed("alice", "10.0.0.1"))

	clock.Advance(1 * time.Second)
	require.NoError(t, svc.CheckAllowed("alice", "10.0.0.1"))
}

func TestLoginProtectionServiceRecordSuccessClearsStreak(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, err := NewLoginProtectionService(LoginProtectionConfig{Clock: clock})
	require.NoError(t, err)

	svc.RecordFailure("alice", "10.0.0.1")
	svc.RecordSuccess("alice", "10.0.0.1")
	require.NoError(t, svc.CheckAllowed("alice", "10.0.0.1"))
	require.False(t, svc.UserStatus("alice").Blocked)
}

func TestLoginProtectionServiceCleanupRemovesStaleEntries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc, err := NewLoginProtectionService(LoginProtectionConfig{Clock: clock, StaleAfter: time.Minute})
	require.NoError(t, err)

	svc.RecordFailure("alice", "10.0.0.1")
	clock.Advance(2 * time.Minute)

	stats := svc.Cleanup()
	require.Equal(t, 1, stats.UsersRemoved)
	require.Equal(t, 1, stats.IPsRemoved)
}
