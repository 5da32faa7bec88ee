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

import "errors"

// InvalidConfigurationError reports a malformed client configuration or a
// malformed cluster snapshot (bad vbucket map, empty URL set).
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// ErrNoRoute is returned by Locate when no node can serve the key: every
// node is dead, or the key's vbucket has no mapped master.
var ErrNoRoute = errors.New("cachepool: no node available for key")

// ErrNodeUnreachable classifies transport-level failures the external
// connection layer folds into a node's failure event.
var ErrNodeUnreachable = errors.New("cachepool: node unreachable")

// ErrPoolDisposed is returned from calls made after Dispose.
var ErrPoolDisposed = errors.New("cachepool: pool is disposed")
