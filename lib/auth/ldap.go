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
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/gravitational/trace"
)

// LDAPVerifierConfig configures an LDAPVerifier. Warpgate never performs a
// full SSO login flow itself (that belongs to the out-of-scope admin HTTP
// surface); this is the opaque identity-link verifier a SAML/OIDC front end
// would call to confirm a User's linked directory object still exists
// before an auto-linked session is allowed through.
type LDAPVerifierConfig struct {
	Addr         string
	BindDN       string
	BindPassword string
	BaseDN       string

	// UUIDAttribute is the directory attribute holding the object's stable
	// identifier, matched against User.LDAPObjectUUID.
	UUIDAttribute string
}

// CheckAndSetDefaults validates the config and fills sane defaults.
func (c *LDAPVerifierConfig) CheckAndSetDefaults() error {
	if c.Addr == "" {
		return trace.BadParameter("ldap verifier: addr is required")
	}
	if c.BaseDN == "" {
		return trace.BadParameter("ldap verifier: base dn is required")
	}
	if c.UUIDAttribute == "" {
		c.UUIDAttribute = "entryUUID"
	}
	return nil
}

// LDAPVerifier confirms that a User's linked external identity
// (LDAPServerID/LDAPObjectUUID) still resolves to a live directory object,
// so a stale or deleted SSO link cannot keep authorizing sessions.
type LDAPVerifier struct {
	cfg LDAPVerifierConfig
}

// NewLDAPVerifier creates an LDAPVerifier from the given config.
func NewLDAPVerifier(cfg LDAPVerifierConfig) (*LDAPVerifier, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &LDAPVerifier{cfg: cfg}, nil
}

// VerifyObjectUUID binds to the directory and confirms that objectUUID
// still exists under the configured base DN.
func (v *LDAPVerifier) VerifyObjectUUID(objectUUID string) error {
	conn, err := ldap.DialURL(v.cfg.Addr)
	if err != nil {
		return trace.ConnectionProblem(err, "failed to connect to LDAP server %q", v.cfg.Addr)
	}
	defer conn.Close()

	if v.cfg.BindDN != "" {
		if err := conn.Bind(v.cfg.BindDN, v.cfg.BindPassword); err != nil {
			return trace.AccessDenied("ldap bind failed: %v", err)
		}
	}

	filter := fmt.Sprintf("(%s=%s)", v.cfg.UUIDAttribute, ldap.EscapeFilter(objectUUID))
	req := ldap.NewSearchRequest(
		v.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter,
		[]string{v.cfg.UUIDAttribute},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return trace.ConnectionProblem(err, "ldap search failed")
	}
	if len(result.Entries) == 0 {
		return trace.NotFound("ldap object %q no longer exists under %q", objectUUID, v.cfg.BaseDN)
	}
	return nil
}
