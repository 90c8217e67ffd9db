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

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestParseSelectorTicket(t *testing.T) {
	sel := parseSelector("ticket-abc123")
	require.True(t, sel.IsTicket)
	require.Equal(t, "abc123", sel.TicketSecret)
}

func TestParseSelectorHashDelimited(t *testing.T) {
	sel := parseSelector("alice#prod-db")
	require.False(t, sel.IsTicket)
	require.Equal(t, "alice", sel.Username)
	require.Equal(t, "prod-db", sel.TargetName)
}

func TestParseSelectorColonDelimited(t *testing.T) {
	sel := parseSelector("alice:prod-db")
	require.Equal(t, "alice", sel.Username)
	require.Equal(t, "prod-db", sel.TargetName)
}

func TestParseSelectorBareUsername(t *testing.T) {
	sel := parseSelector("alice")
	require.False(t, sel.IsTicket)
	require.Equal(t, "alice", sel.Username)
	require.Empty(t, sel.TargetName)
}

func TestParseSelectorHashTakesPrecedenceOverColon(t *testing.T) {
	sel := parseSelector("alice#prod:db")
	require.Equal(t, "alice", sel.Username)
	require.Equal(t, "prod:db", sel.TargetName)
}

// fakeConnMetadata is a minimal ssh.ConnMetadata for exercising
// authTracker without a real handshake.
type fakeConnMetadata struct {
	user      string
	sessionID []byte
}

func (f fakeConnMetadata) User() string          { return f.user }
func (f fakeConnMetadata) SessionID() []byte      { return f.sessionID }
func (f fakeConnMetadata) ClientVersion() []byte  { return []byte("SSH-2.0-test-client") }
func (f fakeConnMetadata) ServerVersion() []byte  { return []byte("SSH-2.0-warpgate") }
func (f fakeConnMetadata) RemoteAddr() net.Addr   { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (f fakeConnMetadata) LocalAddr() net.Addr    { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

var _ ssh.ConnMetadata = fakeConnMetadata{}

func TestAuthTrackerReusesAttemptForSameConnection(t *testing.T) {
	tracker := newAuthTracker()
	conn := fakeConnMetadata{user: "alice#prod", sessionID: []byte("session-1")}

	a1 := tracker.get(conn)
	a2 := tracker.get(conn)
	require.Same(t, a1, a2)
	require.Equal(t, "alice", a1.sel.Username)
	require.Equal(t, "prod", a1.sel.TargetName)
}

func TestAuthTrackerIsolatesDifferentConnections(t *testing.T) {
	tracker := newAuthTracker()
	a1 := tracker.get(fakeConnMetadata{user: "alice", sessionID: []byte("session-1")})
	a2 := tracker.get(fakeConnMetadata{user: "bob", sessionID: []byte("session-2")})
	require.NotSame(t, a1, a2)
}

func TestAuthTrackerForgetRemovesAttempt(t *testing.T) {
	tracker := newAuthTracker()
	conn := fakeConnMetadata{user: "alice", sessionID: []byte("session-1")}
	a1 := tracker.get(conn)
	tracker.forget(conn)
	a2 := tracker.get(conn)
	require.NotSame(t, a1, a2)
}

func TestDecodeStringRoundTrip(t *testing.T) {
	payload := ssh.Marshal(struct{ Name string }{Name: "sftp"})
	require.Equal(t, "sftp", decodeString(payload))
}

func TestDecodeStringRejectsTruncatedPayload(t *testing.T) {
	require.Equal(t, "", decodeString([]byte{0, 0, 0}))
	require.Equal(t, "", decodeString([]byte{0, 0, 0, 10, 'a'}))
}
