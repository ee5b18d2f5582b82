//  Copyright 2025 UserCreation Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package secret generates account credentials.
package secret

import (
	cryptorand "crypto/rand"
	mathrand "math/rand"
	"time"

	"github.com/GoogleCloudPlatform/galog"
)

// alphabet is the character set credentials are drawn from.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// cryptoRead is a reference to crypto/rand's Read, it's overridden in unit
// tests to exercise the fallback path.
var cryptoRead = cryptorand.Read

// fallbackRand is the weaker source used when the cryptographically strong
// source is unavailable. Uniqueness across invocations is not verified, the
// source's entropy is assumed sufficient.
var fallbackRand = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))

// NewPassword produces a random password of the given length drawn only from
// the alphanumeric alphabet. It prefers the cryptographically strong source
// and falls back to a weaker one if the strong source fails, the output
// contract (alphanumeric only, exact length) holds either way.
func NewPassword(length int) string {
	res := make([]byte, 0, length)
	buf := make([]byte, length)

	for len(res) < length {
		if _, err := cryptoRead(buf); err != nil {
			galog.Warnf("Strong random source unavailable (%v), falling back to weaker source.", err)
			return fallbackPassword(length)
		}
		// Discard bytes that fall outside the alphabet rather than folding them
		// in, folding would bias the distribution.
		for _, b := range buf {
			if len(res) == length {
				break
			}
			if int(b) < len(alphabet)*4 {
				res = append(res, alphabet[int(b)%len(alphabet)])
			}
		}
	}

	return string(res)
}

// fallbackPassword draws from the weaker source, still enforcing the
// alphanumeric-only fixed-length contract.
func fallbackPassword(length int) string {
	res := make([]byte, length)
	for i := range res {
		res[i] = alphabet[fallbackRand.Intn(len(alphabet))]
	}
	return string(res)
}
