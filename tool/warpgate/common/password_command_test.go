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

func TestHashPasswordCommandRunsWithProvidedPassword(t *testing.T) {
	c := &HashPasswordCommand{password: "correct horse battery staple"}
	require.NoError(t, c.run())
}

func TestHashPasswordCommandTryRunOnlyMatchesItsOwnCommand(t *testing.T) {
	app := kingpin.New("warpgate", "")
	c := &HashPasswordCommand{}
	c.Initialize(app)

	match, err := c.TryRun(context.Background(), "some-other-command")
	require.NoError(t, err)
	require.False(t, match)

	c.password = "hunter222222"
	match, err = c.TryRun(context.Background(), "hash-password")
	require.NoError(t, err)
	require.True(t, match)
}
