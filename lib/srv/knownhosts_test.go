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

	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/lib/backend/memory"
)

func TestKnownHostsVerifierUnknownByDefault(t *testing.T) {
	b := memory.New()
	v := NewKnownHostsVerifier(b, false)

	result, err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", "AAAA")
	require.NoError(t, err)
	require.Equal(t, "unknown", string(result))
}

func TestKnownHostsVerifierValidAfterTrust(t *testing.T) {
	b := memory.New()
	v := NewKnownHostsVerifier(b, false)

	require.NoError(t, v.Trust(context.Background(), "example.com", 22, "ssh-ed25519", "AAAA"))

	result, err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", "AAAA")
	require.NoError(t, err)
	require.Equal(t, "valid", string(result))
}

func TestKnownHostsVerifierInvalidOnMismatch(t *testing.T) {
	b := memory.New()
	v := NewKnownHostsVerifier(b, false)

	require.NoError(t, v.Trust(context.Background(), "example.com", 22, "ssh-ed25519", "AAAA"))

	result, err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", "BBBB")
	require.NoError(t, err)
	require.Equal(t, "invalid", string(result))
}

func TestKnownHostsVerifierTrustOnFirstUse(t *testing.T) {
	b := memory.New()
	v := NewKnownHostsVerifier(b, true)

	result, err := v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", "AAAA")
	require.NoError(t, err)
	require.Equal(t, "valid", string(result))

	result, err = v.Verify(context.Background(), "example.com", 22, "ssh-ed25519", "BBBB")
	require.NoError(t, err)
	require.Equal(t, "invalid", string(result))
}
