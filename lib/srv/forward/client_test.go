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

package forward

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/backend/memory"
	"github.com/warpgate-labs/warpgate/lib/srv"
)

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

func TestHostKeyCallbackUnknownRejectedByDefault(t *testing.T) {
	b := memory.New()
	verifier := srv.NewKnownHostsVerifier(b, false)
	cfg := Config{Verifier: verifier}
	require.NoError(t, cfg.CheckAndSetDefaults())

	cb := cfg.hostKeyCallback(context.Background(), "example.com", 22)
	signer := testSigner(t)
	err := cb("example.com:22", nil, signer.PublicKey())
	require.Error(t, err)
}

func TestHostKeyCallbackAutoTrustAccepts(t *testing.T) {
	b := memory.New()
	verifier := srv.NewKnownHostsVerifier(b, false)
	cfg := Config{Verifier: verifier, AutoTrustUnknown: true}
	require.NoError(t, cfg.CheckAndSetDefaults())

	cb := cfg.hostKeyCallback(context.Background(), "example.com", 22)
	signer := testSigner(t)
	require.NoError(t, cb("example.com:22", nil, signer.PublicKey()))
	// second connection with the same key must also succeed, now via the
	// recorded known-hosts entry rather than auto-trust.
	require.NoError(t, cb("example.com:22", nil, signer.PublicKey()))
}

func TestHostKeyCallbackMismatchAfterTrust(t *testing.T) {
	b := memory.New()
	verifier := srv.NewKnownHostsVerifier(b, true)
	cfg := Config{Verifier: verifier}
	require.NoError(t, cfg.CheckAndSetDefaults())

	cb := cfg.hostKeyCallback(context.Background(), "example.com", 22)
	first := testSigner(t)
	require.NoError(t, cb("example.com:22", nil, first.PublicKey()))

	second := testSigner(t)
	err := cb("example.com:22", nil, second.PublicKey())
	require.Error(t, err)
	var mismatch *HostKeyMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestAuthMethodsPrefersGatewaySignerThenTarget(t *testing.T) {
	signer := testSigner(t)
	cfg := Config{GatewaySigners: []ssh.Signer{signer}}
	methods := authMethods(cfg, &types.SSHTargetOptions{AuthKind: "password", Password: "secret"})
	require.Len(t, methods, 2)
}
