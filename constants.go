/*
Copyright 2018-2019 Gravitational, Inc.

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

// Package warpgate holds constants shared across every Warpgate package:
// component names used as structured-logging fields and Prometheus metric
// names. Kept at the module root the way teleport keeps its own constants.go,
// so every package can write `warpgate.ComponentSSHServer` instead of a
// string literal.
package warpgate

const (
	// ComponentSSHServer is the SSH Server Frontend (client-facing terminator).
	ComponentSSHServer = "srv:ssh"
	// ComponentSSHClient is the SSH Client Frontend (re-origination to target).
	ComponentSSHClient = "srv:client"
	// ComponentSessionCore is the per-session orchestration core.
	ComponentSessionCore = "srv:session"
	// ComponentAuth is the credential store, policy engine and auth state store.
	ComponentAuth = "auth"
	// ComponentSFTP is the SFTP request/response inspector.
	ComponentSFTP = "srv:sftp"
	// ComponentSCP is the SCP exec-stream inspector.
	ComponentSCP = "srv:scp"
	// ComponentEvents is the recording subsystem and audit log.
	ComponentEvents = "events"
	// ComponentRateLimit is the rate-limiter stack.
	ComponentRateLimit = "ratelimit"
	// ComponentBackend is the persistence gateway.
	ComponentBackend = "backend"
	// ComponentKnownHosts is the known-hosts verifier.
	ComponentKnownHosts = "knownhosts"
	// ComponentCLI is the warpgate command-line tool.
	ComponentCLI = "cli"
)

const metricNamespace = "warpgate"

const (
	// MetricProxiedSSHSessions counts sessions currently proxied through this instance.
	MetricProxiedSSHSessions = metricNamespace + "_proxied_ssh_sessions"
	// MetricConnectToTargetAttempts counts attempts to dial an SSH target.
	MetricConnectToTargetAttempts = metricNamespace + "_connect_to_target_attempts_total"
	// MetricFailedConnectToTargetAttempts counts failed attempts to dial an SSH target.
	MetricFailedConnectToTargetAttempts = metricNamespace + "_failed_connect_to_target_attempts_total"
	// MetricFailedLoginAttempts counts failed authentication attempts.
	MetricFailedLoginAttempts = metricNamespace + "_failed_login_attempts_total"
	// MetricAuthStateStoreSize reports the number of live auth states.
	MetricAuthStateStoreSize = metricNamespace + "_auth_state_store_size"
	// MetricActiveRecordings reports the number of open recording writers.
	MetricActiveRecordings = metricNamespace + "_active_recordings"
)

// SharedDirMode is the mode used for directories Warpgate creates itself
// (recording storage), readable by the group but not world-writable.
const SharedDirMode = 0750
