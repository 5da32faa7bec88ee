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

import "cachepool/locator"

// InternalState is the pool's routing state: the node handles, the locator
// over them, and the matching operation factory. It is immutable once
// published; every reconfiguration builds a fresh one and the previous one
// is disposed. Node order is preserved so vbucket map indices stay valid.
type InternalState struct {
	CurrentNodes []*Node
	Locator      locator.Locator
	OpFactory    OperationFactory

	// ForwardLocator carries the pending vbucket map during a rebalance,
	// when the snapshot supplies one.
	ForwardLocator *locator.VBucketLocator
}

// dispose retires every node in the state. Best-effort: node cleanup never
// fails the swap that replaced this state.
func (s *InternalState) dispose() {
	for _, n := range s.CurrentNodes {
		n.Dispose()
	}
}

// emptyLocator routes nothing; it backs the Empty sentinel state.
type emptyLocator struct{}

func (emptyLocator) Locate(string) locator.Node   { return nil }
func (emptyLocator) WorkingNodes() []locator.Node { return nil }

// newEmptyState returns the sentinel state with zero nodes, a locator that
// returns no node, and a factory that still produces well-formed operations.
func newEmptyState() *InternalState {
	return &InternalState{
		Locator:   emptyLocator{},
		OpFactory: basicOperationFactory{},
	}
}
