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

package common

import (
	"context"
	"testing"

	"github.com/gravitational/kingpin"
	"github.com/stretchr/testify/require"
)

// stubCommand is a minimal CLICommand used to exercise TryRun's dispatch
// loop without touching a real backend.
type stubCommand struct {
	cmd   *kingpin.CmdClause
	name  string
	help  string
	ran   bool
	runErr error
}

func (s *stubCommand) Initialize(app *kingpin.Application) {
	s.cmd = app.Command(s.name, s.help)
}

func (s *stubCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	if selectedCommand != s.cmd.FullCommand() {
		return false, nil
	}
	s.ran = true
	return true, s.runErr
}

func TestTryRunDispatchesToMatchingCommand(t *testing.T) {
	a := &stubCommand{name: "alpha", help: "the alpha command"}
	b := &stubCommand{name: "beta", help: "the beta command"}

	err := TryRun([]CLICommand{a, b}, []string{"beta"})
	require.NoError(t, err)
	require.False(t, a.ran)
	require.True(t, b.ran)
}

func TestTryRunPropagatesCommandError(t *testing.T) {
	failing := &stubCommand{name: "gamma", help: "fails", runErr: errBoom}

	err := TryRun([]CLICommand{failing}, []string{"gamma"})
	require.Error(t, err)
}

func TestTryRunRejectsUnknownArgs(t *testing.T) {
	a := &stubCommand{name: "alpha", help: "the alpha command"}

	err := TryRun([]CLICommand{a}, []string{"not-a-command"})
	require.Error(t, err)
}

var errBoom = &stubError{"boom"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
