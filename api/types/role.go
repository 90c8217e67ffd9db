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

// Role groups targets a set of users may reach, and carries the default
// file-transfer permissions targets inherit unless they override them.
type Role struct {
	ID          string
	Name        string
	Description string

	FileTransferDefaults FileTransferPolicy
}

// CheckAndSetDefaults validates the role.
func (r *Role) CheckAndSetDefaults() error {
	if r.Name == "" {
		return trace.BadParameter("role: name is required")
	}
	return nil
}

// FileTransferPolicy controls upload/download permissions for SFTP and SCP.
// Each field is a nullable override: nil means "inherit from the next
// level up" per the resolution order in SPEC_FULL §4.6 (target<->role
// override -> role default -> global default).
type FileTransferPolicy struct {
	AllowUpload   *bool
	AllowDownload *bool
	// AllowedPathPrefixes restricts transfers to paths under one of these
	// prefixes. Empty/nil means unrestricted.
	AllowedPathPrefixes []string
	// BlockedExtensions denies transfer of any file whose name ends with
	// one of these suffixes (including the dot, e.g. ".key").
	BlockedExtensions []string
	// MaxSizeBytes caps a single file transfer. Nil means unlimited.
	MaxSizeBytes *int64
	// FileTransferOnly restricts the session to file-transfer subsystems
	// only (no shell, exec, port-forward, etc.) per SPEC_FULL §4.3.
	FileTransferOnly *bool
}

func mergeBoolOverride(override, fallback *bool) *bool {
	if override != nil {
		return override
	}
	return fallback
}

// Merge resolves p (an override, e.g. a target<->role edge) against a
// fallback (e.g. a role default), preferring p's value in each field when
// present.
func (p FileTransferPolicy) Merge(fallback FileTransferPolicy) FileTransferPolicy {
	out := FileTransferPolicy{
		AllowUpload:      mergeBoolOverride(p.AllowUpload, fallback.AllowUpload),
		AllowDownload:    mergeBoolOverride(p.AllowDownload, fallback.AllowDownload),
		MaxSizeBytes:     fallback.MaxSizeBytes,
		FileTransferOnly: mergeBoolOverride(p.FileTransferOnly, fallback.FileTransferOnly),
	}
	if p.MaxSizeBytes != nil {
		out.MaxSizeBytes = p.MaxSizeBytes
	}
	if len(p.AllowedPathPrefixes) > 0 {
		out.AllowedPathPrefixes = p.AllowedPathPrefixes
	} else {
		out.AllowedPathPrefixes = fallback.AllowedPathPrefixes
	}
	if len(p.BlockedExtensions) > 0 {
		out.BlockedExtensions = p.BlockedExtensions
	} else {
		out.BlockedExtensions = fallback.BlockedExtensions
	}
	return out
}

// EffectiveBool resolves a nullable override chain to a concrete boolean,
// defaulting to def when every level was nil.
func EffectiveBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
