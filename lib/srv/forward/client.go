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

// Package forward implements the SSH Client Frontend: the half of a
// proxied session that re-originates to the selected target, verifying
// its host key and authenticating with the target's own configured
// credentials.
package forward

import (
	"context"
	"encoding/base64"
	"net"
	"strconv"
	"time"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/warpgate-labs/warpgate"
	"github.com/warpgate-labs/warpgate/api/types"
	"github.com/warpgate-labs/warpgate/lib/srv"
)

// dialTimeout bounds how long Dial waits for the TCP connect and SSH
// handshake combined.
const dialTimeout = 10 * time.Second

// HostKeyMismatchError is returned when the target presents a host key
// that conflicts with a previously trusted one for the same host:port
// and key type, distinguishing it from a plain "unknown and not
// auto-trusted" rejection.
type HostKeyMismatchError struct {
	Host string
	Port int
}

func (e *HostKeyMismatchError) Error() string {
	return "host key mismatch for " + e.Host + ":" + strconv.Itoa(e.Port)
}

// Config configures the SSH Client Frontend's connections to targets.
type Config struct {
	Verifier *srv.KnownHostsVerifier
	// AutoTrustUnknown inserts an unknown host's key instead of aborting,
	// mirroring KnownHostsVerifier.TrustOnFirstUse but decided here so the
	// policy can differ per listener.
	AutoTrustUnknown bool
	// GatewaySigners are tried first against every target, before falling
	// back to the target's own configured credentials.
	GatewaySigners []ssh.Signer

	Log *logrus.Entry
}

// CheckAndSetDefaults validates the config and fills defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.Verifier == nil {
		return trace.BadParameter("forward: known-hosts verifier is required")
	}
	if c.Log == nil {
		c.Log = logrus.WithField(trace.Component, warpgate.ComponentSSHClient)
	}
	return nil
}

// Client wraps an established SSH connection to an SSH target, exposing
// the ops the Session Core needs to pair channels.
type Client struct {
	conn ssh.Conn
}

// Dial connects to target, verifies its host key and authenticates.
func Dial(ctx context.Context, cfg Config, target *types.Target) (*Client, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if target.Kind != types.TargetKindSSH || target.Options.SSH == nil {
		return nil, trace.BadParameter("target %q is not an ssh target", target.Name)
	}
	opts := target.Options.SSH

	clientConfig := &ssh.ClientConfig{
		User:            opts.Username,
		Auth:            authMethods(cfg, opts),
		HostKeyCallback: cfg.hostKeyCallback(ctx, opts.Host, opts.Port),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	deadline := time.Now().Add(dialTimeout)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "dial target %q: %v", target.Name, err)
	}

	_ = conn.SetDeadline(deadline)
	sconn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()
		return nil, trace.Wrap(err)
	}
	_ = conn.SetDeadline(time.Time{})
	go ssh.DiscardRequests(reqs)
	go func() {
		for range chans {
			// The target should never open channels back to us; drain and
			// ignore any that arrive.
		}
	}()

	return &Client{conn: sconn}, nil
}

// authMethods returns the gateway's own keys first, then the target's
// configured credential as a fallback.
func authMethods(cfg Config, opts *types.SSHTargetOptions) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(cfg.GatewaySigners) > 0 {
		methods = append(methods, ssh.PublicKeys(cfg.GatewaySigners...))
	}
	switch opts.AuthKind {
	case "public_key":
		if signer, err := ssh.ParsePrivateKey([]byte(opts.PrivateKeyPEM)); err == nil {
			methods = append(methods, ssh.PublicKeys(signer))
		}
	case "password":
		methods = append(methods, ssh.Password(opts.Password))
	}
	return methods
}

// hostKeyCallback adapts the Known-Hosts Verifier to ssh.HostKeyCallback.
func (c Config) hostKeyCallback(ctx context.Context, host string, port int) ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		result, err := c.Verifier.Verify(ctx, host, port, key.Type(), encodeKey(key))
		if err != nil {
			return trace.Wrap(err)
		}
		switch result {
		case types.KnownHostValid:
			return nil
		case types.KnownHostInvalid:
			return &HostKeyMismatchError{Host: host, Port: port}
		case types.KnownHostUnknown:
			if c.AutoTrustUnknown {
				return trace.Wrap(c.Verifier.Trust(ctx, host, port, key.Type(), encodeKey(key)))
			}
			return trace.AccessDenied("host key for %s:%d is not trusted", host, port)
		default:
			return trace.AccessDenied("host key for %s:%d could not be verified", host, port)
		}
	}
}

func encodeKey(key ssh.PublicKey) string {
	return base64.StdEncoding.EncodeToString(key.Marshal())
}

// OpenChannel opens a client-side channel of the given type against the
// target, mirroring one the SSH Server Frontend accepted from the client.
func (c *Client) OpenChannel(ctx context.Context, channelType string, extraData []byte) (ssh.Channel, <-chan *ssh.Request, error) {
	ch, reqs, err := c.conn.OpenChannel(channelType, extraData)
	if err != nil {
		if openErr, ok := err.(*ssh.OpenChannelError); ok {
			return nil, nil, trace.Wrap(openErr)
		}
		return nil, nil, trace.Wrap(err)
	}
	return ch, reqs, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
