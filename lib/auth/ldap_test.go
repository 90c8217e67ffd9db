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

	"github.com/stretchr/testify/require"
)

func TestLDAPVerifierConfigRequiresAddrAndBaseDN(t *testing.T) {
	_, err := NewLDAPVerifier(LDAPVerifierConfig{})
	require.Error(t, err)

	_, err = NewLDAPVerifier(LDAPVerifierConfig{Addr: "ldap://localhost:389"})
	require.Error(t, err)
}

func TestLDAPVerifierConfigDefaultsUUIDAttribute(t *testing.T) {
	v, err := NewLDAPVerifier(LDAPVerifierConfig{
		Addr:   "ldap://localhost:389",
		BaseDN: "dc=example,dc=com",
	})
	require.NoError(t, err)
	require.Equal(t, "entryUUID", v.cfg.UUIDAttribute)
}

func TestLDAPVerifierVerifyObjectUUIDFailsWhenServerUnreachable(t *testing.T) {
	v, err := NewLDAPVerifier(LDAPVerifierConfig{
		Addr:   "ldap://127.0.0.1:1",
		BaseDN: "dc=example,dc=com",
	})
	require.NoError(t, err)
	require.Error(t, v.VerifyObjectUUID("some-uuid"))
}
