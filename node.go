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

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cachepool/telemetry"
)

// SocketPool is the per-node connection pool owned by a node handle. The
// socket I/O primitives live outside this module; implementations wrap them.
type SocketPool interface {
	// Ping performs a low-cost liveness round-trip.
	Ping(ctx context.Context) error
	Close() error
}

// PoolDialer constructs a connection pool for an endpoint. A fresh pool is
// built for every node handle; handles are never shared across states.
type PoolDialer interface {
	NewPool(endpoint string) (SocketPool, error)
}

// Node is the stateful handle for one cache node. It owns its socket pool
// exclusively and lives only as long as the InternalState that contains it.
// Exactly one subscriber (the pool manager) receives its failure events via
// the callback slot set at construction.
type Node struct {
	endpoint    string
	pool        SocketPool
	pingTimeout time.Duration
	onFailed    func(*Node)

	alive       atomic.Bool
	lastFailure atomic.Int64
	detached    atomic.Bool
	disposeOnce sync.Once

	log *logrus.Entry
}

func newNode(endpoint string, pool SocketPool, pingTimeout time.Duration, onFailed func(*Node)) *Node {
	n := &Node{
		endpoint:    endpoint,
		pool:        pool,
		pingTimeout: pingTimeout,
		onFailed:    onFailed,
		log:         logrus.WithField("node", endpoint),
	}
	n.alive.Store(true)
	return n
}

// Endpoint returns the node's host:port.
func (n *Node) Endpoint() string { return n.endpoint }

// IsAlive reports whether the node is eligible for routing.
func (n *Node) IsAlive() bool { return n.alive.Load() }

// LastFailure returns when the node last tripped dead detection, or the zero
// time if it never has.
func (n *Node) LastFailure() time.Time {
	ns := n.lastFailure.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Pool exposes the node's socket pool to the operation layer.
func (n *Node) Pool() SocketPool { return n.pool }

// MarkFailed is called by the operation layer when an I/O error classified
// as node-down occurs. The first failure after a period of health flips the
// node dead and notifies the pool manager; events on an already-dead or
// detached handle are dropped.
func (n *Node) MarkFailed(err error) {
	if n.detached.Load() {
		return
	}
	n.lastFailure.Store(time.Now().UnixNano())
	if !n.alive.CompareAndSwap(true, false) {
		return
	}
	n.log.WithError(err).Warn("node marked dead")
	telemetry.ObserveNodeFailure()
	if cb := n.onFailed; cb != nil {
		cb(n)
	}
}

// Ping probes the node. On success the node becomes routable again on the
// next locator call; the ring is never rebuilt for a liveness change.
func (n *Node) Ping() bool {
	ctx, cancel := context.WithTimeout(context.Background(), n.pingTimeout)
	defer cancel()

	if err := n.pool.Ping(ctx); err != nil {
		n.lastFailure.Store(time.Now().UnixNano())
		n.log.WithError(err).Debug("ping failed")
		return false
	}
	n.alive.Store(true)
	return true
}

// Dispose closes the pooled sockets and detaches the failure callback.
// Safe to call multiple times; errors are swallowed so cleanup never masks
// a successful state swap.
func (n *Node) Dispose() {
	n.disposeOnce.Do(func() {
		n.detached.Store(true)
		if err := n.pool.Close(); err != nil {
			n.log.WithError(err).Debug("closing socket pool")
		}
	})
}
