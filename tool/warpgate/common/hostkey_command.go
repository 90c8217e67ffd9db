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
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate/lib/config"
	"github.com/warpgate-labs/warpgate/lib/srv"
)

// TrustHostKeyCommand implements `warpgate trust-host-key`.
type TrustHostKeyCommand struct {
	cmd *kingpin.CmdClause

	host    string
	port    int
	keyFile string
}

// Initialize registers the trust-host-key command.
func (c *TrustHostKeyCommand) Initialize(app *kingpin.Application) {
	c.cmd = app.Command("trust-host-key", "Record a target's SSH host key as trusted.")
	c.cmd.Arg("host", "Target hostname or address.").Required().StringVar(&c.host)
	c.cmd.Arg("port", "Target SSH port.").Default("22").IntVar(&c.port)
	c.cmd.Flag("key-file", "Path to an authorized_keys-formatted public key file. Defaults to reading from stdin.").StringVar(&c.keyFile)
}

// TryRun runs the command if selected.
func (c *TrustHostKeyCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	if selectedCommand != c.cmd.FullCommand() {
		return false, nil
	}
	return true, trace.Wrap(c.run(ctx))
}

func (c *TrustHostKeyCommand) run(ctx context.Context) error {
	var raw []byte
	var err error
	if c.keyFile != "" {
		raw, err = os.ReadFile(c.keyFile)
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return trace.ConvertSystemError(err)
	}

	key, _, _, _, err := ssh.ParseAuthorizedKey(raw)
	if err != nil {
		return trace.Wrap(err, "parsing host public key")
	}

	cfg, err := config.Load(globalConfigFile)
	if err != nil {
		return trace.Wrap(err)
	}
	store, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return trace.Wrap(err)
	}
	defer store.Close()

	verifier := srv.NewKnownHostsVerifier(store, false)
	keyBase64 := base64.StdEncoding.EncodeToString(key.Marshal())
	if err := verifier.Trust(ctx, c.host, c.port, key.Type(), keyBase64); err != nil {
		return trace.Wrap(err)
	}
	fmt.Printf("trusted %s key for %s:%d\n", key.Type(), c.host, c.port)
	return nil
}
