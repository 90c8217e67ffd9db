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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeTailReturnsNotFoundForUnopenedRecording(t *testing.T) {
	sink, err := NewFileSink(FileSinkConfig{Directory: t.TempDir()})
	require.NoError(t, err)
	defer sink.Close()

	recorder, err := NewRecorder(RecorderConfig{Sink: sink})
	require.NoError(t, err)

	handler := NewLiveTailHandler(recorder)

	req := httptest.NewRequest(http.MethodGet, "/tail/missing", nil)
	rec := httptest.NewRecorder()

	handler.ServeTail(rec, req, "missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
