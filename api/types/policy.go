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

// Policy is the tagged union of credential-sufficiency policies a user (or
// protocol default) can carry. Exactly one of the kind-specific fields is
// populated, matching Kind.
type Policy struct {
	Kind PolicyKind

	AllRequired CredentialKindSet
	PerProtocol *PerProtocolPolicy
}

// PolicyKind discriminates the Policy union.
type PolicyKind string

const (
	// PolicyKindAnySingle accepts any single validated credential of a
	// supported kind.
	PolicyKindAnySingle PolicyKind = "any_single"
	// PolicyKindAllRequired requires the validated set to be a superset of
	// a fixed required set.
	PolicyKindAllRequired PolicyKind = "all_required"
	// PolicyKindPerProtocol dispatches to a sub-policy keyed by protocol.
	PolicyKindPerProtocol PolicyKind = "per_protocol"
)

// PerProtocolPolicy maps a protocol tag to a sub-policy, falling back to
// Default when the protocol has no explicit entry.
type PerProtocolPolicy struct {
	ByProtocol map[Protocol]Policy
	Default    *Policy
}

// AnySinglePolicy returns a Policy that accepts any single supported kind.
func AnySinglePolicy() Policy {
	return Policy{Kind: PolicyKindAnySingle}
}

// AllRequiredPolicy returns a Policy requiring every kind in required.
func AllRequiredPolicy(required CredentialKindSet) Policy {
	return Policy{Kind: PolicyKindAllRequired, AllRequired: required}
}

// PerProtocolPolicyOf returns a Policy that dispatches by protocol.
func PerProtocolPolicyOf(byProtocol map[Protocol]Policy, def Policy) Policy {
	return Policy{Kind: PolicyKindPerProtocol, PerProtocol: &PerProtocolPolicy{
		ByProtocol: byProtocol,
		Default:    &def,
	}}
}

// PolicyResultKind discriminates the result of evaluating a Policy.
type PolicyResultKind string

const (
	// PolicyResultOk means the accumulated credentials satisfy the policy.
	PolicyResultOk PolicyResultKind = "ok"
	// PolicyResultNeed means more credentials of the listed kinds are required.
	PolicyResultNeed PolicyResultKind = "need"
)

// PolicyResult is the outcome of evaluating a Policy against an
// accumulated set of validated credential kinds.
type PolicyResult struct {
	Kind    PolicyResultKind
	Missing CredentialKindSet
}

// Ok reports whether the result is an acceptance.
func (r PolicyResult) Ok() bool {
	return r.Kind == PolicyResultOk
}

// Evaluate is total: unknown/empty supported kinds are simply never
// satisfiable by AllRequired, and AnySingle is satisfied by any non-empty
// validated set. It never panics on malformed input; a zero-value Policy
// evaluates as AnySingle's opposite (always Need of an empty set), so
// callers must construct policies via the constructors above.
func (p Policy) Evaluate(protocol Protocol, validated CredentialKindSet) PolicyResult {
	switch p.Kind {
	case PolicyKindAnySingle:
		if len(validated) > 0 {
			return PolicyResult{Kind: PolicyResultOk}
		}
		return PolicyResult{Kind: PolicyResultNeed, Missing: CredentialKindSet{}}
	case PolicyKindAllRequired:
		missing := CredentialKindSet{}
		for k := range p.AllRequired {
			if !validated.Has(k) {
				missing.Add(k)
			}
		}
		if len(missing) == 0 {
			return PolicyResult{Kind: PolicyResultOk}
		}
		return PolicyResult{Kind: PolicyResultNeed, Missing: missing}
	case PolicyKindPerProtocol:
		if p.PerProtocol == nil {
			return PolicyResult{Kind: PolicyResultNeed, Missing: CredentialKindSet{}}
		}
		if sub, ok := p.PerProtocol.ByProtocol[protocol]; ok {
			return sub.Evaluate(protocol, validated)
		}
		if p.PerProtocol.Default != nil {
			return p.PerProtocol.Default.Evaluate(protocol, validated)
		}
		return PolicyResult{Kind: PolicyResultNeed, Missing: CredentialKindSet{}}
	default:
		// Unknown policy kind: total function, never satisfiable.
		return PolicyResult{Kind: PolicyResultNeed, Missing: CredentialKindSet{}}
	}
}

// Protocol is the client-facing wire protocol a session was established
// over.
type Protocol string

const (
	ProtocolSSH      Protocol = "ssh"
	ProtocolMySQL    Protocol = "mysql"
	ProtocolPostgres Protocol = "postgres"
	ProtocolHTTP     Protocol = "http"
)
