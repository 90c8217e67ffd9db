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

package sftp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warpgate-labs/warpgate/api/types"
)

func buildOpen(reqID uint32, path string, flags uint32) []byte {
	buf := []byte{typeOpen}
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], reqID)
	buf = append(buf, idBuf[:]...)
	buf = appendString(buf, path)
	var flagBuf [4]byte
	binary.BigEndian.PutUint32(flagBuf[:], flags)
	buf = append(buf, flagBuf[:]...)
	buf = append(buf, 0, 0, 0, 0) // empty ATTRS
	return buf
}

func buildHandleResponse(reqID uint32, handle string) []byte {
	buf := []byte{typeHandle}
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], reqID)
	buf = append(buf, idBuf[:]...)
	return appendString(buf, handle)
}

func buildClose(reqID uint32, handle string) []byte {
	buf := []byte{typeClose}
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], reqID)
	buf = append(buf, idBuf[:]...)
	return appendString(buf, handle)
}

func TestInspectorAllowsDownloadByDefault(t *testing.T) {
	insp := NewInspector(types.FileTransferPolicy{}, nil)
	deny := insp.InspectRequest(buildOpen(1, "/etc/passwd", pflagRead))
	require.Nil(t, deny)
}

func TestInspectorDeniesUploadWhenDisallowed(t *testing.T) {
	no := false
	insp := NewInspector(types.FileTransferPolicy{AllowUpload: &no}, nil)
	deny := insp.InspectRequest(buildOpen(1, "/tmp/x", pflagWrite|pflagCreat))
	require.NotEmpty(t, deny)
	require.Equal(t, byte(typeStatus), deny[0])
}

func TestInspectorDeniesBlockedExtension(t *testing.T) {
	insp := NewInspector(types.FileTransferPolicy{BlockedExtensions: []string{".key"}}, nil)
	deny := insp.InspectRequest(buildOpen(1, "/home/u/id_rsa.key", pflagRead))
	require.NotEmpty(t, deny)
}

func TestInspectorDeniesOutsidePathPrefix(t *testing.T) {
	insp := NewInspector(types.FileTransferPolicy{AllowedPathPrefixes: []string{"/home/u/"}}, nil)
	deny := insp.InspectRequest(buildOpen(1, "/etc/shadow", pflagRead))
	require.NotEmpty(t, deny)
}

func TestInspectorTracksTransferCompletion(t *testing.T) {
	insp := NewInspector(types.FileTransferPolicy{}, nil)
	require.Nil(t, insp.InspectRequest(buildOpen(1, "/tmp/a", pflagRead)))
	insp.InspectResponse(buildHandleResponse(1, "h1"))

	insp.InspectRequest(buildClose(2, "h1"))
	ev := insp.TakeCompletedTransfer()
	require.NotNil(t, ev)
	require.Equal(t, "/tmp/a", ev.Path)
	require.Equal(t, DirectionDownload, ev.Direction)

	require.Nil(t, insp.TakeCompletedTransfer())
}

func TestInspectorEnforcesSizeCapOnWrite(t *testing.T) {
	capBytes := int64(4)
	insp := NewInspector(types.FileTransferPolicy{MaxSizeBytes: &capBytes}, nil)
	require.Nil(t, insp.InspectRequest(buildOpen(1, "/tmp/a", pflagWrite|pflagCreat)))
	insp.InspectResponse(buildHandleResponse(1, "h1"))

	write := func(reqID uint32, handle string, data []byte) []byte {
		buf := []byte{typeWrite}
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], reqID)
		buf = append(buf, idBuf[:]...)
		buf = appendString(buf, handle)
		buf = append(buf, make([]byte, 8)...) // offset
		return appendString(buf, string(data))
	}

	require.Nil(t, insp.InspectRequest(write(2, "h1", bytes.Repeat([]byte{1}, 3))))
	deny := insp.InspectRequest(write(3, "h1", bytes.Repeat([]byte{1}, 3)))
	require.NotEmpty(t, deny)
}
