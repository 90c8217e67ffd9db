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
	"os"
	"path/filepath"
	"sync"

	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate"
)

// FileSinkConfig configures a FileSink.
type FileSinkConfig struct {
	// Directory holds one JSONL file per recording, named <id>.jsonl.
	Directory string
}

// CheckAndSetDefaults validates the config and creates Directory if it
// doesn't already exist.
func (c *FileSinkConfig) CheckAndSetDefaults() error {
	if c.Directory == "" {
		return trace.BadParameter("file sink: directory is required")
	}
	if err := os.MkdirAll(c.Directory, warpgate.SharedDirMode); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// FileSink is a Sink that appends flushed frames to a local file per
// recording, useful for a single-node deployment or for tests. A
// clustered deployment would instead sink into the Persistence Gateway's
// blob storage, which this type deliberately doesn't attempt.
type FileSink struct {
	cfg FileSinkConfig

	mu      sync.Mutex
	handles map[string]*os.File
}

// NewFileSink creates a FileSink rooted at cfg.Directory.
func NewFileSink(cfg FileSinkConfig) (*FileSink, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &FileSink{cfg: cfg, handles: make(map[string]*os.File)}, nil
}

// Write appends data to the file backing recordingID, opening it on first
// use.
func (s *FileSink) Write(ctx context.Context, recordingID string, data []byte) error {
	f, err := s.handleFor(recordingID)
	if err != nil {
		return trace.Wrap(err)
	}
	if _, err := f.Write(data); err != nil {
		return trace.ConvertSystemError(err)
	}
	return nil
}

// Close releases every open file handle. Call once the Recorder using this
// sink has been drained.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lastErr error
	for id, f := range s.handles {
		if err := f.Close(); err != nil {
			lastErr = err
		}
		delete(s.handles, id)
	}
	return lastErr
}

func (s *FileSink) handleFor(recordingID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.handles[recordingID]; ok {
		return f, nil
	}
	path := filepath.Join(s.cfg.Directory, recordingID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	s.handles[recordingID] = f
	return f, nil
}
