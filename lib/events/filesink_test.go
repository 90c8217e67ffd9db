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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSinkAppendsAcrossMultipleWrites(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{Directory: dir})
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), "rec-1", []byte("line one\n")))
	require.NoError(t, sink.Write(context.Background(), "rec-1", []byte("line two\n")))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "rec-1.jsonl"))
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\n", string(data))
}

func TestFileSinkSeparatesRecordings(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(FileSinkConfig{Directory: dir})
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Write(context.Background(), "a", []byte("alpha\n")))
	require.NoError(t, sink.Write(context.Background(), "b", []byte("beta\n")))

	a, err := os.ReadFile(filepath.Join(dir, "a.jsonl"))
	require.NoError(t, err)
	require.Equal(t, "alpha\n", string(a))

	b, err := os.ReadFile(filepath.Join(dir, "b.jsonl"))
	require.NoError(t, err)
	require.Equal(t, "beta\n", string(b))
}

func TestNewFileSinkRequiresDirectory(t *testing.T) {
	_, err := NewFileSink(FileSinkConfig{})
	require.Error(t, err)
}
