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

// Package config loads a Warpgate instance's process-level bootstrap
// configuration: the listen address, the Persistence Gateway backend to
// open, host and gateway keys, and the ambient knobs (rate limiting,
// recording, known-hosts trust) that shape how the SSH Server/Client
// Frontends are constructed. Per-user and per-target policy lives in the
// backend itself (api/types.Parameters, Role, Target), not here.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gravitational/trace"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// StorageConfig selects and configures the Persistence Gateway backend.
type StorageConfig struct {
	// Kind is "memory", "postgres" or "sqlite".
	Kind string `yaml:"kind" mapstructure:"kind"`
	// DSN is the connection string for "postgres"/"sqlite"; ignored for
	// "memory".
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// SSHConfig configures the SSH Server Frontend's listener and keys.
type SSHConfig struct {
	// ListenAddr is the address the SSH Server Frontend binds, e.g.
	// "0.0.0.0:2222".
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
	// HostKeyPaths are PEM-encoded private keys presented to connecting
	// clients as the server's host key(s).
	HostKeyPaths []string `yaml:"host_key_paths" mapstructure:"host_key_paths"`
	// GatewayKeyPaths are PEM-encoded private keys the SSH Client
	// Frontend offers to every target before falling back to the
	// target's own configured credential.
	GatewayKeyPaths []string `yaml:"gateway_key_paths" mapstructure:"gateway_key_paths"`
	// AutoTrustUnknownHosts inserts an unrecognized target host key into
	// the known-hosts store instead of rejecting the connection.
	AutoTrustUnknownHosts bool `yaml:"auto_trust_unknown_hosts" mapstructure:"auto_trust_unknown_hosts"`
}

// RateLimitConfig configures the Rate-Limiter Stack's global tier.
type RateLimitConfig struct {
	// GlobalBytesPerSecond caps aggregate throughput across every session.
	// Zero means unlimited.
	GlobalBytesPerSecond int64 `yaml:"global_bytes_per_second" mapstructure:"global_bytes_per_second"`
}

// RecordingConfig configures the Recording Subsystem.
type RecordingConfig struct {
	// Enabled turns on session recording. Per SPEC_FULL, recording is
	// optional.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// LoggingConfig configures the process-wide logrus setup.
type LoggingConfig struct {
	// Level is one of logrus's level names ("debug", "info", "warn",
	// "error"). Defaults to "info".
	Level string `yaml:"level" mapstructure:"level"`
}

// LDAPConfig configures the opaque external-identity verifier used to
// re-check an SSO-linked user's directory object before trusting an
// auto-linked session. Unset (Addr empty) disables the check entirely.
type LDAPConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	BindDN       string `yaml:"bind_dn" mapstructure:"bind_dn"`
	BindPassword string `yaml:"bind_password" mapstructure:"bind_password"`
	BaseDN       string `yaml:"base_dn" mapstructure:"base_dn"`
}

// RecoveryConfig configures the admin-recovery bearer token issuer.
type RecoveryConfig struct {
	// SigningKey is the HMAC secret used to sign recovery tokens. Required
	// only if the (out-of-scope) admin HTTP surface issues recovery tokens.
	SigningKey string `yaml:"signing_key" mapstructure:"signing_key"`
}

// Config is the top-level configuration for a `warpgate start` process.
type Config struct {
	SSH       SSHConfig       `yaml:"ssh" mapstructure:"ssh"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Recording RecordingConfig `yaml:"recording" mapstructure:"recording"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	LDAP      LDAPConfig      `yaml:"ldap" mapstructure:"ldap"`
	Recovery  RecoveryConfig  `yaml:"recovery" mapstructure:"recovery"`
}

// envPrefix is the prefix viper binds environment variable overrides
// under, e.g. WARPGATE_SSH_LISTEN_ADDR.
const envPrefix = "WARPGATE"

// Load reads configuration from path (if non-empty) or from the standard
// search locations, overlays environment variable overrides, and
// validates the result. An empty path that also matches no standard
// location returns a Config with defaults applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("warpgate")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, trace.Wrap(err, "reading configuration")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, trace.Wrap(err, "decoding configuration")
	}
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &cfg, nil
}

// CheckAndSetDefaults validates c and fills in defaults for anything left
// unset.
func (c *Config) CheckAndSetDefaults() error {
	if c.SSH.ListenAddr == "" {
		c.SSH.ListenAddr = "0.0.0.0:2222"
	}
	if len(c.SSH.HostKeyPaths) == 0 {
		return trace.BadParameter("ssh.host_key_paths: at least one host key is required")
	}

	if c.Storage.Kind == "" {
		c.Storage.Kind = "memory"
	}
	switch c.Storage.Kind {
	case "memory":
	case "postgres", "sqlite":
		if c.Storage.DSN == "" {
			return trace.BadParameter("storage.dsn is required for storage.kind %q", c.Storage.Kind)
		}
	default:
		return trace.BadParameter("storage.kind must be one of memory, postgres, sqlite, got %q", c.Storage.Kind)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return nil
}

// ParseYAML is a thin wrapper over gopkg.in/yaml.v2 for decoding a
// standalone YAML fragment without the full viper env-override stack. The
// warpgate subcommands do not call it; they read their configuration
// through Load.
func ParseYAML(data []byte, out interface{}) error {
	return yaml.Unmarshal(data, out)
}

// findConfigFile searches standard locations for warpgate.yaml/.yml, with
// an explicit extension so it's never confused with the warpgate binary
// itself sitting in the same directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".warpgate")}
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/warpgate")
	}
	for _, dir := range paths {
		for _, ext := range []string{"yaml", "yml"} {
			candidate := filepath.Join(dir, "warpgate."+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
