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

package types

import (
	"fmt"

	"github.com/gravitational/trace"
)

// KnownHost is one trusted (host, port, key type) -> key record, recorded
// either by an operator (`warpgate trust-host-key`) or on first connect
// under trust-on-first-use.
type KnownHost struct {
	ID string

	Host    string
	Port    int
	KeyType string
	// KeyBase64 is the base64-encoded wire form of the public key.
	KeyBase64 string

	// SeenAt is informational: when this record was created or last
	// reconfirmed.
	SeenAt int64
}

// CheckAndSetDefaults validates the known-host record.
func (k *KnownHost) CheckAndSetDefaults() error {
	if k.Host == "" {
		return trace.BadParameter("known host: host is required")
	}
	if k.Port == 0 {
		k.Port = 22
	}
	if k.KeyType == "" {
		return trace.BadParameter("known host: key type is required")
	}
	if k.KeyBase64 == "" {
		return trace.BadParameter("known host: key is required")
	}
	return nil
}

// Identity returns the (host, port, key_type) triple that identifies this
// record's uniqueness key, independent of the key value itself: two
// records with the same identity but different KeyBase64 mean the host
// key changed.
func (k *KnownHost) Identity() string {
	return fmt.Sprintf("%s:%d:%s", k.Host, k.Port, k.KeyType)
}

// KnownHostVerifyResult is the outcome of checking a presented host key
// against the known-hosts store.
type KnownHostVerifyResult string

const (
	// KnownHostValid means the presented key matches the stored record.
	KnownHostValid KnownHostVerifyResult = "valid"
	// KnownHostInvalid means a record exists for this (host, port, key_type)
	// but the presented key does not match it.
	KnownHostInvalid KnownHostVerifyResult = "invalid"
	// KnownHostUnknown means no record exists for this (host, port, key_type).
	KnownHostUnknown KnownHostVerifyResult = "unknown"
)
