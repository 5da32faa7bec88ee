// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cachepool

// SaslAuth holds the credentials handed to the external SASL handshake
// layer. Only the PLAIN mechanism is selected by the pool; the handshake
// itself lives with the socket layer.
type SaslAuth struct {
	Mechanism string
	Username  string
	Password  string
}

// defaultBucket is the unauthenticated bucket name.
const defaultBucket = "default"

// selectAuth picks the SASL credentials for a bucket. The default bucket
// (empty name or "default") is unauthenticated. Otherwise the password falls
// back along: explicit parameter, configured password, bucket name.
func selectAuth(bucket, explicitPassword, configuredPassword string) *SaslAuth {
	if bucket == "" || bucket == defaultBucket {
		return nil
	}
	password := explicitPassword
	if password == "" {
		password = configuredPassword
	}
	if password == "" {
		password = bucket
	}
	return &SaslAuth{Mechanism: "PLAIN", Username: bucket, Password: password}
}
