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

package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/backend"
)

var _ backend.Backend = (*Backend)(nil)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := Open(context.Background(), DriverSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b
}

func TestSQLBackendUserRoundTrip(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	u := &types.User{Username: "alice"}
	require.NoError(t, b.UpsertUser(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := b.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	require.NoError(t, b.DeleteUser(ctx, u.ID))
	_, err = b.GetUserByID(ctx, u.ID)
	require.Error(t, err)
}

func TestSQLBackendKnownHostLookup(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	kh := &types.KnownHost{Host: "example.com", Port: 22, KeyType: "ssh-ed25519", KeyBase64: "AAAA"}
	require.NoError(t, b.UpsertKnownHost(ctx, kh))

	got, err := b.GetKnownHost(ctx, "example.com", 22, "ssh-ed25519")
	require.NoError(t, err)
	require.Equal(t, kh.ID, got.ID)
}

func TestSQLBackendParametersDefaultWhenUnset(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	p, err := b.GetParameters(ctx)
	require.NoError(t, err)
	require.False(t, p.AllowOwnCredentialManagement)

	p.AllowOwnCredentialManagement = true
	require.NoError(t, b.SetParameters(ctx, p))

	got, err := b.GetParameters(ctx)
	require.NoError(t, err)
	require.True(t, got.AllowOwnCredentialManagement)
}
