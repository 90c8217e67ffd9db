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

// Package common implements the warpgate CLI's command tree: parsing,
// global flags and the four subcommands (start, trust-host-key,
// hash-password, ticket create), in the same kingpin-driven shape
// tool/tctl uses for the teleport CLI.
package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"

	"github.com/warpgate-labs/warpgate/lib/utils"
)

const globalHelpString = "warpgate runs a Warpgate SSH bastion instance and manages its configuration."

const configFileEnvar = "WARPGATE_CONFIG"

// GlobalCLIFlags holds the flags accepted by every warpgate subcommand.
type GlobalCLIFlags struct {
	// Debug enables verbose logging to stderr.
	Debug bool
	// ConfigFile is the path to the warpgate YAML configuration file.
	ConfigFile string
}

// CLICommand is implemented by every warpgate subcommand.
type CLICommand interface {
	// Initialize registers the command and its flags with app.
	Initialize(app *kingpin.Application)
	// TryRun executes the command if selectedCommand belongs to it.
	TryRun(ctx context.Context, selectedCommand string) (match bool, err error)
}

// Run parses os.Args and executes the matching command, exiting the
// process on error.
func Run(commands []CLICommand) {
	if err := TryRun(commands, os.Args[1:]); err != nil {
		utils.FatalError(err)
	}
}

// TryRun is the testable core of Run: it parses args and dispatches to
// whichever command claims the selected subcommand.
func TryRun(commands []CLICommand, args []string) error {
	utils.InitLogger(utils.LoggingForCLI, log.InfoLevel)

	app := utils.InitCLIParser("warpgate", globalHelpString)

	var ccf GlobalCLIFlags
	app.Flag("debug", "Enable verbose logging to stderr").Short('d').BoolVar(&ccf.Debug)
	app.Flag("config", "Path to a warpgate configuration file. Can also be set via "+configFileEnvar+".").
		Short('c').
		Envar(configFileEnvar).
		StringVar(&ccf.ConfigFile)

	for _, c := range commands {
		c.Initialize(app)
	}

	utils.UpdateAppUsageTemplate(app, args)
	selected, err := app.Parse(args)
	if err != nil {
		app.Usage(args)
		return trace.Wrap(err)
	}

	if ccf.Debug {
		utils.InitLogger(utils.LoggingForCLI, log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	globalConfigFile = ccf.ConfigFile

	var match bool
	for _, c := range commands {
		match, err = c.TryRun(ctx, selected)
		if err != nil {
			return trace.Wrap(err)
		}
		if match {
			return nil
		}
	}
	return trace.NotFound("unrecognized command %q", selected)
}

// globalConfigFile is set by TryRun after flag parsing and read by every
// command's TryRun. A package-level var mirrors how tctl's commands share
// one service.Config; warpgate's commands share just the config path,
// since each opens its own short-lived backend connection.
var globalConfigFile string
