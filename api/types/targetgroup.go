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

import "github.com/gravitational/trace"

// TargetGroup is a named collection of targets that a role can grant
// reachability to as a unit, instead of listing every target individually.
type TargetGroup struct {
	ID          string
	Name        string
	Description string

	// TargetIDs are the member targets, by id.
	TargetIDs []string
}

// CheckAndSetDefaults validates the target group.
func (g *TargetGroup) CheckAndSetDefaults() error {
	if g.Name == "" {
		return trace.BadParameter("target group: name is required")
	}
	return nil
}

// Contains reports whether targetID is a member of this group.
func (g *TargetGroup) Contains(targetID string) bool {
	for _, id := range g.TargetIDs {
		if id == targetID {
			return true
		}
	}
	return false
}
