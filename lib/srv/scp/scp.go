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

// Package scp implements the SCP Inspector: it recognizes `scp` exec
// strings on a session channel and enforces the same file-transfer
// policy as the SFTP Inspector, without ever letting a denied transfer
// reach the target.
package scp

import (
	"strings"

	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/api/types"
)

// Direction mirrors sftp.Direction so callers don't need to import both
// packages just to compare directions.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// Command is a parsed `scp` exec string.
type Command struct {
	Direction Direction
	Recursive bool
	Path      string
}

// IsSCP reports whether exec is an scp invocation, per §4.7's "exec
// strings of the form `scp [-rpdtf] PATH`".
func IsSCP(exec string) bool {
	fields := strings.Fields(exec)
	return len(fields) > 0 && fields[0] == "scp"
}

// Parse decodes an scp exec string into a Command. `-t` means upload
// (the target is receiving, i.e. the session is "to" the target), `-f`
// means download; `-r` requests recursive transfer. Flags are commonly
// combined into one argument (e.g. "-tr") or given separately.
func Parse(exec string) (Command, error) {
	fields := strings.Fields(exec)
	if len(fields) < 2 || fields[0] != "scp" {
		return Command{}, trace.BadParameter("not an scp command: %q", exec)
	}

	var cmd Command
	var path string
	for _, arg := range fields[1:] {
		if !strings.HasPrefix(arg, "-") {
			path = arg
			continue
		}
		for _, flag := range arg[1:] {
			switch flag {
			case 't':
				cmd.Direction = DirectionUpload
			case 'f':
				cmd.Direction = DirectionDownload
			case 'r':
				cmd.Recursive = true
			case 'p', 'd':
				// preserve-attributes / directory-mode: forwarded, not
				// policy-relevant.
			}
		}
	}
	if path == "" {
		return Command{}, trace.BadParameter("scp command carries no path: %q", exec)
	}
	if cmd.Direction == "" {
		return Command{}, trace.BadParameter("scp command specifies neither -t nor -f: %q", exec)
	}
	cmd.Path = path
	return cmd, nil
}

// Check evaluates cmd against the effective file-transfer policy,
// returning a denial reason or "" if the transfer is permitted.
func Check(cmd Command, policy types.FileTransferPolicy) string {
	if cmd.Direction == DirectionUpload && !types.EffectiveBool(policy.AllowUpload, true) {
		return "uploads are not permitted"
	}
	if cmd.Direction == DirectionDownload && !types.EffectiveBool(policy.AllowDownload, true) {
		return "downloads are not permitted"
	}
	if len(policy.AllowedPathPrefixes) > 0 {
		ok := false
		for _, prefix := range policy.AllowedPathPrefixes {
			if strings.HasPrefix(cmd.Path, prefix) {
				ok = true
				break
			}
		}
		if !ok {
			return "path is outside the permitted prefixes"
		}
	}
	for _, ext := range policy.BlockedExtensions {
		if strings.HasSuffix(cmd.Path, ext) {
			return "file extension is blocked"
		}
	}
	return ""
}
