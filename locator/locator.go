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

// Package locator maps request keys to cluster nodes. Two strategies are
// provided: a Ketama-style consistent-hashing ring for classic deployments
// and a vbucket locator for partitioned deployments, where a server-supplied
// map drives key -> bucket -> master routing. Locators are built once per
// cluster configuration and never change membership at runtime; node
// liveness is a read-time overlay.
package locator

// Node is the locator-facing view of a cluster node. The pool manager owns
// the concrete handles; locators only need routing identity and liveness.
type Node interface {
	Endpoint() string
	IsAlive() bool
}

// Locator assigns keys to nodes over a fixed membership.
type Locator interface {
	// Locate returns the node responsible for key, or nil when no node can
	// serve it (all dead, or the key's bucket is unmapped).
	Locate(key string) Node

	// WorkingNodes returns the currently alive subset of the membership.
	WorkingNodes() []Node
}
