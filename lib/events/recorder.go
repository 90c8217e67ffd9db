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

// Package events implements the Recording Subsystem (append-only JSONL
// writer tasks with live-tail fanout) and the audit LogEntry emitter.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate"
)

// inboundQueueSize bounds how many unflushed frames a Recorder will
// buffer before it starts blocking writers.
const inboundQueueSize = 1024

// flushInterval is how often a Recorder flushes buffered frames to its
// sink, independent of queue pressure.
const flushInterval = 5 * time.Second

// broadcastQueueSize bounds how many frames a live-tail subscriber may
// lag behind before it is dropped rather than stalling the writer.
const broadcastQueueSize = 256

// Frame is one JSONL record appended to a recording.
type Frame struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Sink receives the serialized bytes of flushed frames for one recording,
// in order. A RecordingBackend-backed sink would append these to durable
// storage; tests can substitute an in-memory sink.
type Sink interface {
	Write(ctx context.Context, recordingID string, data []byte) error
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Sink  Sink
	Clock clockwork.Clock
	Log   *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *RecorderConfig) CheckAndSetDefaults() error {
	if c.Sink == nil {
		return trace.BadParameter("recorder: sink is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentEvents)
	}
	return nil
}

// Recorder manages one writer task per open Recording: frames are
// appended to a bounded inbound queue, periodically flushed to the sink
// as JSONL, and fanned out to any live-tail subscribers. A subscriber
// that falls behind is dropped rather than allowed to block the writer.
type Recorder struct {
	cfg RecorderConfig

	mu      sync.Mutex
	writers map[string]*recordingWriter
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Recorder{cfg: cfg, writers: make(map[string]*recordingWriter)}, nil
}

// Open starts a writer task for recordingID. It is an error to Open an
// already-open recording.
func (r *Recorder) Open(recordingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.writers[recordingID]; ok {
		return trace.AlreadyExists("recording %q is already open", recordingID)
	}
	w := newRecordingWriter(recordingID, r.cfg)
	r.writers[recordingID] = w
	go w.run()
	return nil
}

// Append queues a frame for recordingID. Blocks if the inbound queue is
// full (applying natural backpressure to the writer's caller) rather than
// dropping data.
func (r *Recorder) Append(ctx context.Context, recordingID string, data []byte) error {
	w, err := r.writerFor(recordingID)
	if err != nil {
		return err
	}
	frame := Frame{Timestamp: r.cfg.Clock.Now(), Data: json.RawMessage(data)}
	select {
	case w.inbound <- frame:
		return nil
	case <-w.closed:
		return trace.BadParameter("recording %q is closed", recordingID)
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// Subscribe returns a channel of frames for live-tail consumers of
// recordingID. The returned unsubscribe function must be called when the
// consumer is done.
func (r *Recorder) Subscribe(recordingID string) (<-chan Frame, func(), error) {
	w, err := r.writerFor(recordingID)
	if err != nil {
		return nil, nil, err
	}
	return w.subscribe()
}

// Close flushes and stops the writer task for recordingID.
func (r *Recorder) Close(recordingID string) error {
	r.mu.Lock()
	w, ok := r.writers[recordingID]
	if ok {
		delete(r.writers, recordingID)
	}
	r.mu.Unlock()
	if !ok {
		return trace.NotFound("recording %q is not open", recordingID)
	}
	w.stop()
	return nil
}

// ActiveCount reports the number of open recording writers, for the
// MetricActiveRecordings gauge.
func (r *Recorder) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.writers)
}

func (r *Recorder) writerFor(recordingID string) (*recordingWriter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.writers[recordingID]
	if !ok {
		return nil, trace.NotFound("recording %q is not open", recordingID)
	}
	return w, nil
}

type recordingWriter struct {
	id  string
	cfg RecorderConfig

	inbound chan Frame
	closed  chan struct{}
	stopped chan struct{}
	stopCh  chan struct{}

	subMu sync.Mutex
	subs  map[chan Frame]struct{}

	pending [][]byte
}

func newRecordingWriter(id string, cfg RecorderConfig) *recordingWriter {
	return &recordingWriter{
		id:      id,
		cfg:     cfg,
		inbound: make(chan Frame, inboundQueueSize),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
		stopCh:  make(chan struct{}),
		subs:    make(map[chan Frame]struct{}),
	}
}

func (w *recordingWriter) run() {
	defer close(w.stopped)
	ticker := w.cfg.Clock.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-w.inbound:
			w.handle(frame)
		case <-ticker.Chan():
			w.flush()
		case <-w.stopCh:
			w.drain()
			w.flush()
			close(w.closed)
			return
		}
	}
}

func (w *recordingWriter) drain() {
	for {
		select {
		case frame := <-w.inbound:
			w.handle(frame)
		default:
			return
		}
	}
}

func (w *recordingWriter) handle(frame Frame) {
	encoded, err := json.Marshal(frame)
	if err != nil {
		w.cfg.Log.WithError(err).Warn("failed to encode recording frame")
		return
	}
	w.pending = append(w.pending, encoded)
	w.broadcast(frame)
}

func (w *recordingWriter) broadcast(frame Frame) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for ch := range w.subs {
		select {
		case ch <- frame:
		default:
			// subscriber is lagging; drop it rather than block the writer.
			delete(w.subs, ch)
			close(ch)
		}
	}
}

func (w *recordingWriter) flush() {
	if len(w.pending) == 0 {
		return
	}
	var buf []byte
	for _, line := range w.pending {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	w.pending = nil
	if err := w.cfg.Sink.Write(context.Background(), w.id, buf); err != nil {
		w.cfg.Log.WithError(err).Warn("failed to flush recording frames")
	}
}

func (w *recordingWriter) subscribe() (<-chan Frame, func(), error) {
	ch := make(chan Frame, broadcastQueueSize)
	w.subMu.Lock()
	w.subs[ch] = struct{}{}
	w.subMu.Unlock()
	unsubscribe := func() {
		w.subMu.Lock()
		defer w.subMu.Unlock()
		if _, ok := w.subs[ch]; ok {
			delete(w.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

func (w *recordingWriter) stop() {
	close(w.stopCh)
	<-w.stopped
}
