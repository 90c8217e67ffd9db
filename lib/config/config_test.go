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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckAndSetDefaultsFillsListenAddrAndStorageKind(t *testing.T) {
	cfg := &Config{SSH: SSHConfig{HostKeyPaths: []string{"/etc/warpgate/host_key"}}}
	require.NoError(t, cfg.CheckAndSetDefaults())
	require.Equal(t, "0.0.0.0:2222", cfg.SSH.ListenAddr)
	require.Equal(t, "memory", cfg.Storage.Kind)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestCheckAndSetDefaultsRequiresHostKey(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.CheckAndSetDefaults())
}

func TestCheckAndSetDefaultsRequiresDSNForSQLBackends(t *testing.T) {
	cfg := &Config{
		SSH:     SSHConfig{HostKeyPaths: []string{"/etc/warpgate/host_key"}},
		Storage: StorageConfig{Kind: "postgres"},
	}
	require.Error(t, cfg.CheckAndSetDefaults())

	cfg.Storage.DSN = "postgres://localhost/warpgate"
	require.NoError(t, cfg.CheckAndSetDefaults())
}

func TestCheckAndSetDefaultsRejectsUnknownStorageKind(t *testing.T) {
	cfg := &Config{
		SSH:     SSHConfig{HostKeyPaths: []string{"/etc/warpgate/host_key"}},
		Storage: StorageConfig{Kind: "mongo"},
	}
	require.Error(t, cfg.CheckAndSetDefaults())
}

func TestParseYAMLDecodesFragment(t *testing.T) {
	var out struct {
		Name string `yaml:"name"`
	}
	require.NoError(t, ParseYAML([]byte("name: alice\n"), &out))
	require.Equal(t, "alice", out.Name)
}
