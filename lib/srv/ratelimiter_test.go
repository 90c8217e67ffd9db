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

	"github.com/stretchr/testify/require"
)

func TestRateLimiterStackUnlimitedByDefault(t *testing.T) {
	stack := NewRateLimiterStack(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stack.Wait(ctx, "alice", "target-1", 1<<20))
}

func TestRateLimiterStackAppliesTightestGate(t *testing.T) {
	stack := NewRateLimiterStack(nil)
	limit := int64(10)
	stack.SetUserLimit("alice", &limit)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// A burst far exceeding the 10 B/s user cap and the unlimited
	// global/target gates must time out waiting on the user gate.
	err := stack.Wait(ctx, "alice", "target-1", 1000)
	require.Error(t, err)
}

func TestRateLimiterStackPerUserIsolation(t *testing.T) {
	stack := NewRateLimiterStack(nil)
	limit := int64(1)
	stack.SetUserLimit("alice", &limit)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// bob has no override and should not be throttled by alice's cap.
	require.NoError(t, stack.Wait(ctx, "bob", "target-1", 1<<10))
}

func TestRateLimiterStackSetLimitClearsOverride(t *testing.T) {
	stack := NewRateLimiterStack(nil)
	limit := int64(1)
	stack.SetTargetLimit("target-1", &limit)
	stack.SetTargetLimit("target-1", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stack.Wait(ctx, "alice", "target-1", 1<<20))
}
