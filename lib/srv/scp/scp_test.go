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

package scp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
)

func TestIsSCP(t *testing.T) {
	require.True(t, IsSCP("scp -t /tmp/x"))
	require.False(t, IsSCP("bash -c ls"))
}

func TestParseUploadFlags(t *testing.T) {
	cmd, err := Parse("scp -tr /tmp/dest")
	require.NoError(t, err)
	require.Equal(t, DirectionUpload, cmd.Direction)
	require.True(t, cmd.Recursive)
	require.Equal(t, "/tmp/dest", cmd.Path)
}

func TestParseDownloadFlags(t *testing.T) {
	cmd, err := Parse("scp -f /tmp/src")
	require.NoError(t, err)
	require.Equal(t, DirectionDownload, cmd.Direction)
	require.False(t, cmd.Recursive)
}

func TestParseRejectsMissingDirection(t *testing.T) {
	_, err := Parse("scp /tmp/x")
	require.Error(t, err)
}

func TestCheckDeniesUploadWhenDisallowed(t *testing.T) {
	no := false
	cmd := Command{Direction: DirectionUpload, Path: "/tmp/x"}
	require.NotEmpty(t, Check(cmd, types.FileTransferPolicy{AllowUpload: &no}))
}

func TestCheckDeniesBlockedExtension(t *testing.T) {
	cmd := Command{Direction: DirectionDownload, Path: "/home/u/secret.key"}
	require.NotEmpty(t, Check(cmd, types.FileTransferPolicy{BlockedExtensions: []string{".key"}}))
}

func TestCheckAllowsByDefault(t *testing.T) {
	cmd := Command{Direction: DirectionUpload, Path: "/tmp/x"}
	require.Empty(t, Check(cmd, types.FileTransferPolicy{}))
}
