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
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/srv"
	"github.com/warpgate-labs/warpgate/lib/srv/forward"
	"github.com/warpgate-labs/warpgate/lib/srv/scp"
	"github.com/warpgate-labs/warpgate/lib/srv/sftp"
)

// resolvePolicy computes the effective file-transfer policy for username
// against target, per the resolution order in SPEC_FULL §4.6: target
// override -> role default -> global default.
func (s *Server) resolvePolicy(ctx context.Context, username string, target *types.Target) (types.FileTransferPolicy, error) {
	var roleDefault types.FileTransferPolicy

	user, err := s.cfg.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return types.FileTransferPolicy{}, trace.Wrap(err)
	}
	if len(user.Roles) > 0 {
		role, err := s.cfg.Roles.GetRole(ctx, user.Roles[0])
		if err != nil && !trace.IsNotFound(err) {
			return types.FileTransferPolicy{}, trace.Wrap(err)
		}
		if role != nil {
			roleDefault = role.FileTransferDefaults
		}
	}

	if target.FileTransferOverride != nil {
		return target.FileTransferOverride.Merge(roleDefault), nil
	}
	return roleDefault, nil
}

// serveChannels resolves the bound target, opens the session's Core and
// dials the SSH Client Frontend, then dispatches every channel the client
// opens over the lifetime of the connection.
func (s *Server) serveChannels(ctx context.Context, sconn *ssh.ServerConn, chans <-chan ssh.NewChannel, username, targetName, ticketID string) {
	log := s.cfg.Log.WithField("user", username)
	if targetName == "" {
		log.Debug("connection closed: no target selected")
		return
	}

	target, err := s.cfg.Targets.GetTargetByName(ctx, targetName)
	if err != nil {
		log.WithError(err).Debug("target lookup failed")
		return
	}
	if target.Kind != types.TargetKindSSH {
		log.Debugf("target %q is not an ssh target", targetName)
		return
	}

	policy, err := s.resolvePolicy(ctx, username, target)
	if err != nil {
		log.WithError(err).Debug("policy resolution failed")
		return
	}

	s.cfg.RateLimiter.SetTargetLimit(target.ID, target.RateLimitBytesPerSecond)
	if user, err := s.cfg.Users.GetUserByUsername(ctx, username); err == nil {
		s.cfg.RateLimiter.SetUserLimit(username, user.RateLimitBytesPerSecond)
	}

	core, err := s.cfg.Registry.Open(ctx, types.ProtocolSSH, sconn.RemoteAddr().String(),
		types.UserSnapshot{Username: username}, types.NewTargetSnapshot(target), ticketID)
	if err != nil {
		log.WithError(err).Debug("failed to open session")
		return
	}
	sessionID := core.Session().ID
	defer s.cfg.Registry.Close(ctx, sessionID)

	if s.cfg.Emitter != nil {
		s.cfg.Emitter.Emit(ctx, sessionID, username, "session started", logrus.Fields{"target": target.Name})
		defer s.cfg.Emitter.Emit(ctx, sessionID, username, "session ended", logrus.Fields{"target": target.Name})
	}
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.Open(sessionID); err != nil {
			log.WithError(err).Debug("failed to open recording")
		} else {
			defer s.cfg.Recorder.Close(sessionID)
		}
	}

	connectingToTarget.Inc()
	client, err := forward.Dial(ctx, s.cfg.Forward, target)
	if err != nil {
		failedConnectingToTarget.Inc()
		log.WithError(err).Debug("failed to connect to target")
		return
	}
	defer client.Close()

	var channelID int32
	var wg sync.WaitGroup
	for newCh := range chans {
		id := int(atomic.AddInt32(&channelID, 1))
		wg.Add(1)
		go func(newCh ssh.NewChannel, id int) {
			defer wg.Done()
			s.handleChannel(ctx, core, client, policy, username, target.ID, sessionID, id, newCh)
		}(newCh, id)
	}
	wg.Wait()
}

// channelState tracks whether a session channel has been switched into
// SFTP mode by a `subsystem sftp` request; until then its data is plain
// shell/exec bytes and is copied unexamined.
type channelState struct {
	mu        sync.Mutex
	inspector *sftp.Inspector
}

func (cs *channelState) engageSFTP(insp *sftp.Inspector) {
	cs.mu.Lock()
	cs.inspector = insp
	cs.mu.Unlock()
}

func (cs *channelState) sftpInspector() *sftp.Inspector {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.inspector
}

// handleChannel pairs one server-side channel with a corresponding
// client-side channel and pumps data and requests between them until
// either side closes.
func (s *Server) handleChannel(ctx context.Context, core *srv.Core, client *forward.Client, policy types.FileTransferPolicy, username, targetID, sessionID string, channelID int, newCh ssh.NewChannel) {
	switch newCh.ChannelType() {
	case "session", "direct-tcpip", "direct-streamlocal":
	default:
		newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
		return
	}

	if types.EffectiveBool(policy.FileTransferOnly, false) && newCh.ChannelType() != "session" {
		newCh.Reject(ssh.Prohibited, "file-transfer-only session")
		return
	}

	serverCh, serverReqs, err := newCh.Accept()
	if err != nil {
		return
	}
	defer serverCh.Close()

	targetCh, targetReqs, err := client.OpenChannel(ctx, newCh.ChannelType(), newCh.ExtraData())
	if err != nil {
		s.cfg.Log.Debugf("target rejected channel %d: %v", channelID, err)
		return
	}
	defer targetCh.Close()

	_ = core.Emit(ctx, srv.RCEvent{Kind: srv.RCEventChannelOpened, ChannelID: channelID})
	defer func() {
		_ = core.Emit(ctx, srv.RCEvent{Kind: srv.RCEventChannelClosed, ChannelID: channelID})
	}()

	state := &channelState{}
	done := make(chan struct{}, 3)
	go s.pumpRequests(serverCh, serverReqs, targetCh, targetReqs, policy, state, done)
	go s.pumpData(ctx, core, username, targetID, sessionID, channelID, serverCh, targetCh, state, true, done)
	go s.pumpData(ctx, core, username, targetID, sessionID, channelID, targetCh, serverCh, state, false, done)
	<-done
}

// pumpData copies bytes from src to dst, gated by the rate-limiter stack.
// Once state has been engaged into SFTP mode, bytes are instead treated
// as length-prefixed SFTP packets and run through the inspector.
func (s *Server) pumpData(ctx context.Context, core *srv.Core, username, targetID, sessionID string, channelID int, src io.Reader, dst io.Writer, state *channelState, fromClient bool, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for {
		if insp := state.sftpInspector(); insp != nil {
			body, err := sftp.ReadPacket(src)
			if err != nil {
				return
			}
			var deny []byte
			if fromClient {
				deny = insp.InspectRequest(body)
			} else {
				insp.InspectResponse(body)
			}
			if deny != nil {
				if werr := sftp.WritePacket(dst, deny); werr != nil {
					return
				}
				continue
			}
			if err := s.cfg.RateLimiter.Wait(ctx, username, targetID, len(body)); err != nil {
				return
			}
			if err := sftp.WritePacket(dst, body); err != nil {
				return
			}
			s.recordFrame(ctx, sessionID, channelID, fromClient, body)
			continue
		}

		buf := make([]byte, 32*1024)
		n, err := src.Read(buf)
		if n > 0 {
			if werr := s.cfg.RateLimiter.Wait(ctx, username, targetID, n); werr != nil {
				return
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			kind := srv.RCEventDataOut
			if fromClient {
				kind = srv.RCEventDataIn
			}
			_ = core.Emit(ctx, srv.RCEvent{Kind: kind, ChannelID: channelID, Bytes: n})
			s.recordFrame(ctx, sessionID, channelID, fromClient, buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// pumpRequests forwards channel requests verbatim in both directions,
// intercepting `subsystem sftp` (to engage the SFTP Inspector) and
// `exec scp ...` (to decide whether the transfer reaches the target at
// all) before they're relayed.
func (s *Server) pumpRequests(serverCh ssh.Channel, serverReqs <-chan *ssh.Request, targetCh ssh.Channel, targetReqs <-chan *ssh.Request, policy types.FileTransferPolicy, state *channelState, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case req, ok := <-serverReqs:
			if !ok {
				return
			}
			if s.interceptClientRequest(req, serverCh, targetCh, policy, state) {
				continue
			}
			forwardRequest(req, targetCh)
		case req, ok := <-targetReqs:
			if !ok {
				return
			}
			forwardRequest(req, serverCh)
		}
	}
}

// interceptClientRequest handles the request kinds that need policy
// enforcement before forwarding. It returns true if it fully handled the
// request itself (including any forwarding or denial), false if the
// caller should forward it unchanged.
func (s *Server) interceptClientRequest(req *ssh.Request, serverCh, targetCh ssh.Channel, policy types.FileTransferPolicy, state *channelState) bool {
	fileTransferOnly := types.EffectiveBool(policy.FileTransferOnly, false)

	switch req.Type {
	case "subsystem":
		name := decodeString(req.Payload)
		if name == "sftp" {
			state.engageSFTP(sftp.NewInspector(policy, s.cfg.Log))
		} else if fileTransferOnly {
			if req.WantReply {
				req.Reply(false, nil)
			}
			return true
		}
		return false
	case "exec":
		exec := decodeString(req.Payload)
		if !scp.IsSCP(exec) {
			if fileTransferOnly {
				if req.WantReply {
					req.Reply(false, nil)
				}
				return true
			}
			return false
		}
		s.handleSCPExec(req, serverCh, targetCh, policy)
		return true
	case "shell", "pty-req":
		if fileTransferOnly {
			if req.WantReply {
				req.Reply(false, nil)
			}
			return true
		}
		return false
	default:
		return false
	}
}

// recordFrame appends a JSONL frame to the session's recording, if one is
// active. Failures are logged but never interrupt the data pump.
func (s *Server) recordFrame(ctx context.Context, sessionID string, channelID int, fromClient bool, data []byte) {
	if s.cfg.Recorder == nil {
		return
	}
	direction := "out"
	if fromClient {
		direction = "in"
	}
	raw, err := json.Marshal(struct {
		Channel   int    `json:"channel"`
		Direction string `json:"direction"`
		Data      []byte `json:"data"`
	}{Channel: channelID, Direction: direction, Data: data})
	if err != nil {
		return
	}
	if err := s.cfg.Recorder.Append(ctx, sessionID, raw); err != nil {
		s.cfg.Log.WithError(err).Debug("failed to append recording frame")
	}
}

// decodeString decodes a single SSH wire string field (uint32 length
// prefix followed by the bytes), as carried in an exec/subsystem request
// payload.
func decodeString(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if n < 0 || 4+n > len(payload) {
		return ""
	}
	return string(payload[4 : 4+n])
}

func forwardRequest(req *ssh.Request, dst ssh.Channel) {
	ok, err := dst.SendRequest(req.Type, req.WantReply, req.Payload)
	if req.WantReply {
		req.Reply(ok && err == nil, nil)
	}
}

// handleSCPExec parses and policy-checks an scp exec string, forwarding
// it to the target only when permitted; a denial closes the channel with
// a failure message on stderr and never reaches the target.
func (s *Server) handleSCPExec(req *ssh.Request, serverCh, targetCh ssh.Channel, policy types.FileTransferPolicy) {
	exec := decodeString(req.Payload)
	cmd, err := scp.Parse(exec)
	if err != nil {
		if req.WantReply {
			req.Reply(false, nil)
		}
		return
	}
	if reason := scp.Check(cmd, policy); reason != "" {
		if req.WantReply {
			req.Reply(true, nil)
		}
		io.WriteString(serverCh.Stderr(), "scp: "+reason+"\n")
		serverCh.Close()
		return
	}
	forwardRequest(req, targetCh)
}
