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

	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/api/types"
)

// KnownHostBackend is the subset of the Persistence Gateway the verifier
// needs.
type KnownHostBackend interface {
	GetKnownHost(ctx context.Context, host string, port int, keyType string) (*types.KnownHost, error)
	UpsertKnownHost(ctx context.Context, kh *types.KnownHost) error
}

// KnownHostsVerifier checks a target's presented host key against
// previously trusted (host, port, key_type) -> key records, with an
// optional trust-on-first-use fallback for unknown hosts.
type KnownHostsVerifier struct {
	backend KnownHostBackend
	// TrustOnFirstUse records an unknown host's key instead of rejecting
	// it, the first time it's seen.
	TrustOnFirstUse bool
}

// NewKnownHostsVerifier creates a verifier over the given backend.
func NewKnownHostsVerifier(backend KnownHostBackend, trustOnFirstUse bool) *KnownHostsVerifier {
	return &KnownHostsVerifier{backend: backend, TrustOnFirstUse: trustOnFirstUse}
}

// Verify checks the presented key against the stored record for
// (host, port, keyType). When TrustOnFirstUse is set and no record
// exists, the presented key is stored and treated as valid.
func (v *KnownHostsVerifier) Verify(ctx context.Context, host string, port int, keyType, keyBase64 string) (types.KnownHostVerifyResult, error) {
	existing, err := v.backend.GetKnownHost(ctx, host, port, keyType)
	if trace.IsNotFound(err) {
		if v.TrustOnFirstUse {
			if err := v.backend.UpsertKnownHost(ctx, &types.KnownHost{
				Host: host, Port: port, KeyType: keyType, KeyBase64: keyBase64,
			}); err != nil {
				return "", trace.Wrap(err)
			}
			return types.KnownHostValid, nil
		}
		return types.KnownHostUnknown, nil
	}
	if err != nil {
		return "", trace.Wrap(err)
	}
	if existing.KeyBase64 != keyBase64 {
		return types.KnownHostInvalid, nil
	}
	return types.KnownHostValid, nil
}

// Trust explicitly records host's key as trusted, overwriting any
// previous record for the same (host, port, key_type), for use by the
// `warpgate trust-host-key` CLI command.
func (v *KnownHostsVerifier) Trust(ctx context.Context, host string, port int, keyType, keyBase64 string) error {
	existing, err := v.backend.GetKnownHost(ctx, host, port, keyType)
	kh := &types.KnownHost{Host: host, Port: port, KeyType: keyType, KeyBase64: keyBase64}
	if err == nil {
		kh.ID = existing.ID
	} else if !trace.IsNotFound(err) {
		return trace.Wrap(err)
	}
	return trace.Wrap(v.backend.UpsertKnownHost(ctx, kh))
}
