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

package regular

import "strings"

// ticketPrefix marks an SSH username as a ticket secret rather than a
// username/target selector.
const ticketPrefix = "ticket-"

// selector is the parsed form of the SSH "user" field, which Warpgate
// overloads to carry target-routing intent alongside the username.
type selector struct {
	// IsTicket is set when the presented username is a ticket secret.
	IsTicket     bool
	TicketSecret string

	Username   string
	TargetName string
}

// parseSelector decodes raw into a selector. It never fails: an
// unparseable remainder is simply treated as a bare username with no
// target, and target selection is deferred to a later protocol hint.
func parseSelector(raw string) selector {
	if strings.HasPrefix(raw, ticketPrefix) {
		return selector{IsTicket: true, TicketSecret: strings.TrimPrefix(raw, ticketPrefix)}
	}

	if idx := strings.Index(raw, "#"); idx >= 0 {
		return selector{Username: raw[:idx], TargetName: raw[idx+1:]}
	}
	if idx := strings.Index(raw, ":"); idx >= 0 {
		return selector{Username: raw[:idx], TargetName: raw[idx+1:]}
	}
	return selector{Username: raw}
}
