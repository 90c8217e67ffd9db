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

package types

import (
	"time"

	"github.com/gravitational/trace"
)

// CredentialKind identifies one of the five credential shapes a user can
// hold. The auth state machine and the policy engine reason purely in
// terms of kinds, never concrete credential values.
type CredentialKind string

const (
	// CredentialKindPassword is an argon2-hashed password.
	CredentialKindPassword CredentialKind = "password"
	// CredentialKindPublicKey is an OpenSSH public key.
	CredentialKindPublicKey CredentialKind = "public_key"
	// CredentialKindOTP is a TOTP (RFC 6238) secret.
	CredentialKindOTP CredentialKind = "otp"
	// CredentialKindSSO is an externally verified SSO identity.
	CredentialKindSSO CredentialKind = "sso"
	// CredentialKindCertificate is a PEM client certificate.
	CredentialKindCertificate CredentialKind = "certificate"
)

// CredentialKindSet is a small set of credential kinds, used by the policy
// engine both for "required" sets and "missing" results.
type CredentialKindSet map[CredentialKind]struct{}

// NewCredentialKindSet builds a set from the given kinds.
func NewCredentialKindSet(kinds ...CredentialKind) CredentialKindSet {
	s := make(CredentialKindSet, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether kind is a member of the set.
func (s CredentialKindSet) Has(kind CredentialKind) bool {
	_, ok := s[kind]
	return ok
}

// Add inserts kind into the set and returns the set for chaining.
func (s CredentialKindSet) Add(kind CredentialKind) CredentialKindSet {
	s[kind] = struct{}{}
	return s
}

// IsSupersetOf reports whether s contains every kind in other.
func (s CredentialKindSet) IsSupersetOf(other CredentialKindSet) bool {
	for k := range other {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Slice returns the set's members as a sorted-by-insertion-irrelevant slice,
// useful for building SSH keyboard-interactive prompts or log fields.
func (s CredentialKindSet) Slice() []CredentialKind {
	out := make([]CredentialKind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Credential is the tagged union of credential kinds a user may hold.
// Only one of the kind-specific fields is populated, matching Kind.
type Credential struct {
	// ID is the credential's own identifier (used for last-used bookkeeping).
	ID string
	// UserID links this credential back to its owning user.
	UserID string
	// Kind discriminates which field below is populated.
	Kind CredentialKind

	Password    *PasswordCredential
	PublicKey   *PublicKeyCredential
	OTP         *OTPCredential
	SSO         *SSOCredential
	Certificate *CertificateCredential
}

// PasswordCredential holds an argon2 password hash.
type PasswordCredential struct {
	Argon2Hash string
}

// PublicKeyCredential holds an OpenSSH-encoded public key.
type PublicKeyCredential struct {
	OpenSSHPublicKey string
	Label            string
	AddedAt          time.Time
	LastUsedAt       time.Time
}

// OTPCredential holds a 32-byte HMAC key used for TOTP.
type OTPCredential struct {
	Key []byte
}

// SSOCredential links a user to an external identity provider account.
type SSOCredential struct {
	Provider string
	Email    string
}

// CertificateCredential holds a PEM client certificate and the name of the
// issuer CA it must chain to.
type CertificateCredential struct {
	PEM        string
	IssuerName string
}

// CheckAndSetDefaults validates the credential is internally consistent:
// exactly the field matching Kind must be set.
func (c *Credential) CheckAndSetDefaults() error {
	set := 0
	for _, populated := range []bool{
		c.Kind == CredentialKindPassword && c.Password != nil,
		c.Kind == CredentialKindPublicKey && c.PublicKey != nil,
		c.Kind == CredentialKindOTP && c.OTP != nil,
		c.Kind == CredentialKindSSO && c.SSO != nil,
		c.Kind == CredentialKindCertificate && c.Certificate != nil,
	} {
		if populated {
			set++
		}
	}
	if set != 1 {
		return trace.BadParameter("credential of kind %q must carry exactly one matching payload", c.Kind)
	}
	return nil
}
