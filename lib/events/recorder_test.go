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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemorySink() *memorySink {
	return &memorySink{data: make(map[string][]byte)}
}

func (s *memorySink) Write(ctx context.Context, recordingID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[recordingID] = append(s.data[recordingID], data...)
	return nil
}

func (s *memorySink) get(recordingID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[recordingID]
}

func newTestRecorder(t *testing.T, clock clockwork.Clock) (*Recorder, *memorySink) {
	t.Helper()
	sink := newMemorySink()
	r, err := NewRecorder(RecorderConfig{Sink: sink, Clock: clock})
	require.NoError(t, err)
	return r, sink
}

func TestRecorderAppendAndFlush(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, sink := newTestRecorder(t, clock)

	require.NoError(t, r.Open("rec-1"))
	require.Equal(t, 1, r.ActiveCount())

	require.NoError(t, r.Append(context.Background(), "rec-1", []byte(`{"x":1}`)))

	require.Eventually(t, func() bool {
		clock.Advance(flushInterval)
		return len(sink.get("rec-1")) > 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.Close("rec-1"))
	require.Equal(t, 0, r.ActiveCount())
}

func TestRecorderOpenTwiceFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _ := newTestRecorder(t, clock)

	require.NoError(t, r.Open("rec-1"))
	require.Error(t, r.Open("rec-1"))
}

func TestRecorderSubscribeReceivesFrames(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _ := newTestRecorder(t, clock)

	require.NoError(t, r.Open("rec-1"))
	frames, unsubscribe, err := r.Subscribe("rec-1")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, r.Append(context.Background(), "rec-1", []byte(`{"x":1}`)))

	select {
	case frame := <-frames:
		require.Equal(t, `{"x":1}`, string(frame.Data))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive frame")
	}
}

func TestRecorderAppendToClosedRecordingFails(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r, _ := newTestRecorder(t, clock)

	require.NoError(t, r.Open("rec-1"))
	require.NoError(t, r.Close("rec-1"))

	err := r.Append(context.Background(), "rec-1", []byte(`{}`))
	require.Error(t, err)
}
