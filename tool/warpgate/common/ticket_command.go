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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"

	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/config"
)

// TicketCommand implements `warpgate ticket create`.
type TicketCommand struct {
	create *kingpin.CmdClause

	username    string
	target      string
	ttl         time.Duration
	uses        int
	description string
}

// Initialize registers the ticket command tree.
func (c *TicketCommand) Initialize(app *kingpin.Application) {
	ticket := app.Command("ticket", "Manage bearer-credential tickets.")
	c.create = ticket.Command("create", "Create a new ticket.")
	c.create.Arg("username", "Username the ticket authenticates as.").Required().StringVar(&c.username)
	c.create.Arg("target", "Target name the ticket is valid for.").Required().StringVar(&c.target)
	c.create.Flag("ttl", "How long the ticket remains valid.").Default("1h").DurationVar(&c.ttl)
	c.create.Flag("uses", "Number of sessions the ticket may establish. -1 for unlimited.").Default("1").IntVar(&c.uses)
	c.create.Flag("description", "Free-form note stored with the ticket.").StringVar(&c.description)
}

// TryRun runs the matching ticket subcommand.
func (c *TicketCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	if selectedCommand != c.create.FullCommand() {
		return false, nil
	}
	return true, trace.Wrap(c.runCreate(ctx))
}

func (c *TicketCommand) runCreate(ctx context.Context) error {
	cfg, err := config.Load(globalConfigFile)
	if err != nil {
		return trace.Wrap(err)
	}
	store, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return trace.Wrap(err)
	}
	defer store.Close()

	target, err := store.GetTargetByName(ctx, c.target)
	if err != nil {
		return trace.Wrap(err)
	}

	ticket := &types.Ticket{
		ID:          uuid.NewString(),
		Secret:      uuid.NewString(),
		Username:    c.username,
		TargetID:    target.ID,
		UsesLeft:    c.uses,
		ExpiresAt:   time.Now().Add(c.ttl),
		CreatedAt:   time.Now(),
		Description: c.description,
	}
	if err := ticket.CheckAndSetDefaults(); err != nil {
		return trace.Wrap(err)
	}
	if err := store.UpsertTicket(ctx, ticket); err != nil {
		return trace.Wrap(err)
	}

	fmt.Printf("ticket %s created for user %q against target %q (secret: %s)\n", ticket.ID, ticket.Username, c.target, ticket.Secret)
	return nil
}
