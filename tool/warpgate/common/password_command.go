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
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/lib/auth"
)

// HashPasswordCommand implements `warpgate hash-password`.
type HashPasswordCommand struct {
	cmd      *kingpin.CmdClause
	password string
}

// Initialize registers the hash-password command.
func (c *HashPasswordCommand) Initialize(app *kingpin.Application) {
	c.cmd = app.Command("hash-password", "Hash a password for storage as a user credential.")
	c.cmd.Arg("password", "Password to hash. Read from stdin if omitted.").StringVar(&c.password)
}

// TryRun runs the command if selected.
func (c *HashPasswordCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	if selectedCommand != c.cmd.FullCommand() {
		return false, nil
	}
	return true, trace.Wrap(c.run())
}

func (c *HashPasswordCommand) run() error {
	password := c.password
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return trace.ConvertSystemError(err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return trace.Wrap(err)
	}
	fmt.Println(hashed)
	return nil
}
