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

package auth

import (
	"encoding/base32"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var otpBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// validateTOTP checks code against a 6-digit, 30-second-period SHA1 TOTP
// secret, allowing one period of clock skew in either direction.
func validateTOTP(key []byte, code string) bool {
	ok, err := totp.ValidateCustom(code, encodeOTPKey(key), time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    6,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return ok
}

// encodeOTPKey base32-encodes the raw HMAC key the way pquerna/otp expects
// its Secret argument to be encoded.
func encodeOTPKey(key []byte) string {
	return otpBase32.EncodeToString(key)
}
