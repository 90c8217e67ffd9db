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
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate/api/types"
)

// Direction classifies which way file content is moving for one OPEN'd
// handle.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// TransferEvent is emitted when a bound handle is closed.
type TransferEvent struct {
	Path      string
	Direction Direction
	Bytes     int64
	StartedAt time.Time
}

type pendingOpen struct {
	path      string
	direction Direction
}

type handleState struct {
	path      string
	direction Direction
	bytesSoFar int64
	startedAt time.Time
}

// Inspector parses SFTP packets flowing over one subsystem channel in
// both directions and enforces policy, per SPEC_FULL §4.6.
type Inspector struct {
	policy types.FileTransferPolicy
	log    *logrus.Entry

	mu           sync.Mutex
	pendingOpens map[uint32]pendingOpen
	pendingReads map[uint32]string // request id -> handle, for download byte counting
	handles      map[string]*handleState
	lastClosed   *TransferEvent
}

// NewInspector creates an Inspector enforcing policy.
func NewInspector(policy types.FileTransferPolicy, log *logrus.Entry) *Inspector {
	return &Inspector{
		policy:       policy,
		log:          log,
		pendingOpens: make(map[uint32]pendingOpen),
		pendingReads: make(map[uint32]string),
		handles:      make(map[string]*handleState),
	}
}

// InspectRequest examines a client->target packet. If deny is non-nil,
// the caller must send deny back to the client instead of forwarding the
// request. Otherwise the request should be forwarded unchanged.
func (i *Inspector) InspectRequest(body []byte) (deny []byte) {
	if len(body) < 5 {
		return nil
	}
	typ := body[0]
	r := &packetReader{buf: body[1:]}
	reqID, ok := r.uint32()
	if !ok {
		return nil
	}

	switch typ {
	case typeOpen:
		return i.inspectOpen(reqID, r)
	case typeWrite:
		return i.inspectWrite(reqID, r)
	case typeRead:
		return i.inspectRead(reqID, r)
	case typeClose:
		i.inspectClose(r)
	}
	return nil
}

// InspectResponse examines a target->client packet for handle binding
// (on HANDLE) and download byte accounting (on DATA). Transfer completion
// is detected on the request side instead, since CLOSE responses don't
// carry the path; see TakeCompletedTransfer.
func (i *Inspector) InspectResponse(body []byte) {
	if len(body) < 5 {
		return
	}
	typ := body[0]
	r := &packetReader{buf: body[1:]}
	reqID, ok := r.uint32()
	if !ok {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	switch typ {
	case typeHandle:
		pending, ok := i.pendingOpens[reqID]
		delete(i.pendingOpens, reqID)
		if !ok {
			return
		}
		handle, ok := r.str()
		if !ok {
			return
		}
		i.handles[handle] = &handleState{path: pending.path, direction: pending.direction, startedAt: time.Now()}
	case typeStatus:
		delete(i.pendingOpens, reqID)
	case typeData:
		handle, ok := i.pendingReads[reqID]
		delete(i.pendingReads, reqID)
		if !ok {
			return
		}
		data, ok := r.str()
		if !ok {
			return
		}
		if state, ok := i.handles[handle]; ok {
			state.bytesSoFar += int64(len(data))
		}
	}
}

func (i *Inspector) inspectOpen(reqID uint32, r *packetReader) []byte {
	path, ok := r.str()
	if !ok {
		return nil
	}
	flags, ok := r.uint32()
	if !ok {
		return nil
	}

	direction := DirectionDownload
	if flags&(pflagWrite|pflagCreat|pflagAppend|pflagTrunc) != 0 {
		direction = DirectionUpload
	}

	if deny := i.checkOpenAllowed(path, direction); deny != "" {
		if i.log != nil {
			i.log.Debugf("denying %s of %q: %s", direction, path, deny)
		}
		return buildStatus(reqID, statusPermissionDenied, deny)
	}

	i.mu.Lock()
	i.pendingOpens[reqID] = pendingOpen{path: path, direction: direction}
	i.mu.Unlock()
	return nil
}

// checkOpenAllowed returns a non-empty denial reason if path/direction
// violates policy.
func (i *Inspector) checkOpenAllowed(path string, direction Direction) string {
	if direction == DirectionUpload && !types.EffectiveBool(i.policy.AllowUpload, true) {
		return "uploads are not permitted"
	}
	if direction == DirectionDownload && !types.EffectiveBool(i.policy.AllowDownload, true) {
		return "downloads are not permitted"
	}
	if len(i.policy.AllowedPathPrefixes) > 0 && !hasAnyPrefix(path, i.policy.AllowedPathPrefixes) {
		return "path is outside the permitted prefixes"
	}
	for _, ext := range i.policy.BlockedExtensions {
		if strings.HasSuffix(path, ext) {
			return "file extension is blocked"
		}
	}
	return ""
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (i *Inspector) inspectWrite(reqID uint32, r *packetReader) []byte {
	handle, ok := r.str()
	if !ok {
		return nil
	}
	if _, ok := r.uint64(); !ok { // offset, unused for cap checks
		return nil
	}
	data, ok := r.str()
	if !ok {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	state, ok := i.handles[handle]
	if !ok {
		return nil
	}
	if i.policy.MaxSizeBytes != nil && state.bytesSoFar+int64(len(data)) > *i.policy.MaxSizeBytes {
		return buildStatus(reqID, statusPermissionDenied, "file size cap exceeded")
	}
	state.bytesSoFar += int64(len(data))
	return nil
}

func (i *Inspector) inspectRead(reqID uint32, r *packetReader) []byte {
	handle, ok := r.str()
	if !ok {
		return nil
	}
	if _, ok := r.uint64(); !ok { // offset, unused for cap checks
		return nil
	}
	length, ok := r.uint32()
	if !ok {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	state, ok := i.handles[handle]
	if !ok {
		return nil
	}
	if i.policy.MaxSizeBytes != nil && state.bytesSoFar+int64(length) > *i.policy.MaxSizeBytes {
		return buildStatus(reqID, statusPermissionDenied, "file size cap exceeded")
	}
	i.pendingReads[reqID] = handle
	return nil
}

// inspectClose records the final state of a handle being closed as the
// TransferEvent that TakeCompletedTransfer returns, and forgets the handle.
func (i *Inspector) inspectClose(r *packetReader) {
	handle, ok := r.str()
	if !ok {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if state, ok := i.handles[handle]; ok {
		i.lastClosed = &TransferEvent{
			Path:      state.path,
			Direction: state.direction,
			Bytes:     state.bytesSoFar,
			StartedAt: state.startedAt,
		}
		delete(i.handles, handle)
	}
}

// TakeCompletedTransfer returns and clears the most recently completed
// transfer event, if any arrived since the last call.
func (i *Inspector) TakeCompletedTransfer() *TransferEvent {
	i.mu.Lock()
	defer i.mu.Unlock()
	ev := i.lastClosed
	i.lastClosed = nil
	return ev
}
