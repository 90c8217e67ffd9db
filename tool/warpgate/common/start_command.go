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
	"net"
	"os"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/auth"
	"github.com/warpgate-labs/warpgate/lib/backend"
	"github.com/warpgate-labs/warpgate/lib/backend/memory"
	"github.com/warpgate-labs/warpgate/lib/backend/sql"
	"github.com/warpgate-labs/warpgate/lib/config"
	"github.com/warpgate-labs/warpgate/lib/events"
	"github.com/warpgate-labs/warpgate/lib/srv"
	"github.com/warpgate-labs/warpgate/lib/srv/forward"
	"github.com/warpgate-labs/warpgate/lib/srv/regular"
)

// recordingDirEnvVar lets a deployment relocate recording storage without
// a dedicated config key; the common case (disabled recording) never
// reads it.
const recordingDirEnvVar = "WARPGATE_RECORDING_DIR"

const defaultRecordingDir = "/var/lib/warpgate/recordings"

// StartCommand implements `warpgate start`.
type StartCommand struct {
	cmd *kingpin.CmdClause
}

// Initialize registers the start command.
func (c *StartCommand) Initialize(app *kingpin.Application) {
	c.cmd = app.Command("start", "Start a warpgate SSH bastion instance.")
}

// TryRun runs the start command if selected.
func (c *StartCommand) TryRun(ctx context.Context, selectedCommand string) (bool, error) {
	if selectedCommand != c.cmd.FullCommand() {
		return false, nil
	}
	return true, trace.Wrap(c.run(ctx))
}

func (c *StartCommand) run(ctx context.Context) error {
	cfg, err := config.Load(globalConfigFile)
	if err != nil {
		return trace.Wrap(err)
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return trace.Wrap(err)
	}
	log.SetLevel(level)
	logger := log.WithField(trace.Component, warpgate.ComponentCLI)

	store, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return trace.Wrap(err)
	}
	defer store.Close()

	hostSigners, err := loadSigners(cfg.SSH.HostKeyPaths)
	if err != nil {
		return trace.Wrap(err)
	}
	gatewaySigners, err := loadSigners(cfg.SSH.GatewayKeyPaths)
	if err != nil {
		return trace.Wrap(err)
	}

	var ldapVerifier *auth.LDAPVerifier
	if cfg.LDAP.Addr != "" {
		ldapVerifier, err = auth.NewLDAPVerifier(auth.LDAPVerifierConfig{
			Addr:         cfg.LDAP.Addr,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
		})
		if err != nil {
			return trace.Wrap(err)
		}
	}

	credentials, err := auth.NewCredentialStore(auth.CredentialStoreConfig{
		Users:  store,
		Policy: types.AnySinglePolicy(),
		LDAP:   ldapVerifier,
	})
	if err != nil {
		return trace.Wrap(err)
	}
	authStates, err := auth.NewAuthStateStore(auth.AuthStateStoreConfig{})
	if err != nil {
		return trace.Wrap(err)
	}
	loginProtection, err := auth.NewLoginProtectionService(auth.LoginProtectionConfig{})
	if err != nil {
		return trace.Wrap(err)
	}

	registry, err := srv.NewRegistry(srv.RegistryConfig{Backend: store})
	if err != nil {
		return trace.Wrap(err)
	}

	var globalLimit *int64
	if cfg.RateLimit.GlobalBytesPerSecond > 0 {
		globalLimit = &cfg.RateLimit.GlobalBytesPerSecond
	}
	rateLimiter := srv.NewRateLimiterStack(globalLimit)

	knownHosts := srv.NewKnownHostsVerifier(store, cfg.SSH.AutoTrustUnknownHosts)

	var emitter *events.Emitter
	var recorder *events.Recorder
	if cfg.Recording.Enabled {
		emitter, err = events.NewEmitter(events.EmitterConfig{Backend: store})
		if err != nil {
			return trace.Wrap(err)
		}
		sinkDir := os.Getenv(recordingDirEnvVar)
		if sinkDir == "" {
			sinkDir = defaultRecordingDir
		}
		sink, err := events.NewFileSink(events.FileSinkConfig{Directory: sinkDir})
		if err != nil {
			return trace.Wrap(err)
		}
		recorder, err = events.NewRecorder(events.RecorderConfig{Sink: sink})
		if err != nil {
			return trace.Wrap(err)
		}
	}

	server, err := regular.NewServer(regular.Config{
		HostSigners:     hostSigners,
		Credentials:     credentials,
		AuthStates:      authStates,
		LoginProtection: loginProtection,
		Targets:         store,
		Tickets:         store,
		Users:           store,
		Roles:           store,
		Registry:        registry,
		RateLimiter:     rateLimiter,
		Emitter:         emitter,
		Recorder:        recorder,
		Forward: forward.Config{
			Verifier:         knownHosts,
			AutoTrustUnknown: cfg.SSH.AutoTrustUnknownHosts,
			GatewaySigners:   gatewaySigners,
		},
	})
	if err != nil {
		return trace.Wrap(err)
	}

	ln, err := net.Listen("tcp", cfg.SSH.ListenAddr)
	if err != nil {
		return trace.ConvertSystemError(err)
	}
	logger.Infof("listening for SSH connections on %s", cfg.SSH.ListenAddr)

	return trace.Wrap(server.Serve(ctx, ln))
}

// openBackend opens the Persistence Gateway backend selected by cfg.
func openBackend(ctx context.Context, cfg config.StorageConfig) (backend.Backend, error) {
	switch cfg.Kind {
	case "memory":
		return memory.New(), nil
	case "postgres":
		return sql.Open(ctx, sql.DriverPostgres, cfg.DSN)
	case "sqlite":
		return sql.Open(ctx, sql.DriverSQLite, cfg.DSN)
	default:
		return nil, trace.BadParameter("unsupported storage kind %q", cfg.Kind)
	}
}

// loadSigners parses each PEM-encoded private key file in paths into an
// ssh.Signer.
func loadSigners(paths []string) ([]ssh.Signer, error) {
	signers := make([]ssh.Signer, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, trace.Wrap(err, "parsing key %q", path)
		}
		signers = append(signers, signer)
	}
	return signers, nil
}
