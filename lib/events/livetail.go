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

package events

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
)

// LiveTailHandler upgrades an HTTP connection to a WebSocket and streams a
// Recorder's live frames to it, the way a web terminal tails an open
// session. Callers mount one per recording id, typically behind the
// (out-of-scope) admin HTTP surface.
type LiveTailHandler struct {
	Recorder *Recorder
	Log      *logrus.Entry
}

// NewLiveTailHandler creates a LiveTailHandler backed by recorder.
func NewLiveTailHandler(recorder *Recorder) *LiveTailHandler {
	return &LiveTailHandler{
		Recorder: recorder,
		Log:      logrus.WithField(trace.Component, warpgate.ComponentEvents),
	}
}

// ServeTail upgrades conn (hijacked from an HTTP request) to a WebSocket and
// writes frames for recordingID until the subscriber is dropped or the
// connection fails.
func (h *LiveTailHandler) ServeTail(w http.ResponseWriter, r *http.Request, recordingID string) {
	frames, unsubscribe, err := h.Recorder.Subscribe(recordingID)
	if err != nil {
		http.Error(w, trace.UserMessage(err), http.StatusNotFound)
		return
	}
	defer unsubscribe()

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		h.Log.WithError(err).Warn("failed to hijack live-tail connection")
		return
	}
	defer conn.Close()

	if _, err := ws.Upgrade(conn); err != nil {
		h.Log.WithError(err).Warn("failed to upgrade live-tail connection")
		return
	}
	_ = rw.Flush()

	h.stream(conn, frames)
}

func (h *LiveTailHandler) stream(conn net.Conn, frames <-chan Frame) {
	for frame := range frames {
		payload, err := json.Marshal(frame)
		if err != nil {
			h.Log.WithError(err).Warn("failed to encode live-tail frame")
			continue
		}
		if err := ws.WriteFrame(conn, ws.NewTextFrame(payload)); err != nil {
			h.Log.WithError(err).Debug("live-tail subscriber disconnected")
			return
		}
	}
	_ = ws.WriteFrame(conn, ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
}
