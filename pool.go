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

// Package cachepool implements the client-side core of a distributed cache
// cluster: a dynamic pool manager that consumes cluster configuration
// snapshots, maintains per-node connection pools and a live routing table,
// and periodically re-probes dead nodes. Hot-path reads (Locate,
// WorkingNodes, OperationFactory) are lock-free; every mutation is
// serialized on a single reconfigure mutex and published atomically as a
// fresh, immutable state.
package cachepool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cachepool/locator"
	"cachepool/telemetry"
)

// Pool is the dynamic pool manager. Construct with NewPool, then Start; the
// zero value is not usable.
type Pool struct {
	cfg    ClientConfig
	source ConfigSource
	dialer PoolDialer
	auth   *SaslAuth

	// state is the hot-path snapshot. Readers load it without taking mu;
	// nil means disposed.
	state atomic.Pointer[InternalState]

	// mu is the reconfigure lock: config swaps, the resurrection timer,
	// and disposal all serialize on it. Readers never take it.
	mu          sync.Mutex
	rezTimer    *time.Timer
	timerActive bool
	disposed    bool

	firstOnce sync.Once
	firstCh   chan error

	log *logrus.Entry
}

// NewPool builds a pool for the bucket named in cfg.
func NewPool(cfg ClientConfig, source ConfigSource, dialer PoolDialer) (*Pool, error) {
	return NewPoolForBucket(cfg, source, dialer, cfg.Bucket, "")
}

// NewPoolForBucket builds a pool for an explicitly named bucket. The SASL
// password falls back along: the explicit parameter, the configured
// password, the bucket name. The default bucket is unauthenticated.
func NewPoolForBucket(cfg ClientConfig, source ConfigSource, dialer PoolDialer, bucket, bucketPassword string) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:     cfg,
		source:  source,
		dialer:  dialer,
		auth:    selectAuth(bucket, bucketPassword, cfg.BucketPassword),
		firstCh: make(chan error, 1),
		log:     logrus.WithField("component", "cachepool"),
	}
	p.state.Store(newEmptyState())
	return p, nil
}

// Start attaches to the config source and blocks until the first routing
// state is published or the first snapshot is rejected. Configuration
// errors during startup are never swallowed.
func (p *Pool) Start() error {
	p.source.OnConfigChanged(p.applyConfig)
	if err := p.source.Start(); err != nil {
		return fmt.Errorf("cachepool: starting config source: %w", err)
	}

	if p.cfg.StartTimeout > 0 {
		select {
		case err := <-p.firstCh:
			return err
		case <-time.After(p.cfg.StartTimeout):
			return fmt.Errorf("cachepool: no cluster configuration received within %s", p.cfg.StartTimeout)
		}
	}
	return <-p.firstCh
}

// Locate returns the node responsible for key. The returned handle stays
// valid for the caller even if a config swap retires it concurrently; the
// operation layer retries on failure.
func (p *Pool) Locate(key string) (*Node, error) {
	st := p.state.Load()
	if st == nil {
		return nil, ErrPoolDisposed
	}
	ln := st.Locator.Locate(key)
	if ln == nil {
		telemetry.ObserveNoRoute()
		return nil, ErrNoRoute
	}
	return ln.(*Node), nil
}

// OperationFactory returns the factory consistent with the current locator,
// or nil after disposal.
func (p *Pool) OperationFactory() OperationFactory {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	return st.OpFactory
}

// WorkingNodes returns the currently alive nodes.
func (p *Pool) WorkingNodes() []*Node {
	st := p.state.Load()
	if st == nil {
		return nil
	}
	working := st.Locator.WorkingNodes()
	nodes := make([]*Node, 0, len(working))
	for _, n := range working {
		nodes = append(nodes, n.(*Node))
	}
	return nodes
}

// Auth returns the SASL credentials for this pool's bucket, or nil for the
// default (unauthenticated) bucket.
func (p *Pool) Auth() *SaslAuth { return p.auth }

// Dispose detaches from the config source, stops the resurrection timer,
// retires every node, and publishes the nil state. Idempotent.
func (p *Pool) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.disposed = true

	p.source.Stop()
	if p.rezTimer != nil {
		p.rezTimer.Stop()
		p.rezTimer = nil
	}
	p.timerActive = false

	if old := p.state.Swap(nil); old != nil {
		old.dispose()
	}
	// Unblock a Start still waiting for its first snapshot.
	p.deliverFirst(ErrPoolDisposed)
}

// applyConfig is the config source callback: it rebuilds the routing state
// from a snapshot and atomically publishes it. A nil snapshot empties the
// pool. Rejected snapshots keep the previous state; the rejection is
// surfaced through Start for the first snapshot and logged thereafter.
func (p *Pool) applyConfig(cfg *ClusterConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.suspendTimerLocked()

	var (
		newState *InternalState
		err      error
	)
	switch {
	case cfg == nil:
		newState = newEmptyState()
	case cfg.VBucketServerMap != nil:
		newState, err = p.buildVBucketState(cfg)
	default:
		newState, err = p.buildBasicState(cfg)
	}
	if err != nil {
		p.log.WithError(err).Error("rejecting cluster configuration")
		p.deliverFirst(err)
		return
	}

	old := p.state.Swap(newState)
	telemetry.ObserveConfigSwap(len(newState.CurrentNodes))
	p.log.WithField("nodes", len(newState.CurrentNodes)).Info("cluster configuration applied")

	// The previous state's nodes get exactly one dispose; errors inside
	// never mask the completed swap.
	if old != nil {
		old.dispose()
	}
	p.deliverFirst(nil)
}

func (p *Pool) deliverFirst(err error) {
	p.firstOnce.Do(func() { p.firstCh <- err })
}

// buildNodes constructs fresh node handles for the endpoints, in order. A
// handle is never reused across states, even for an unchanged endpoint, so
// half-disposed sockets cannot leak into the new state.
func (p *Pool) buildNodes(endpoints []string) ([]*Node, []locator.Node, error) {
	nodes := make([]*Node, 0, len(endpoints))
	for _, ep := range endpoints {
		sp, err := p.dialer.NewPool(ep)
		if err != nil {
			for _, n := range nodes {
				n.Dispose()
			}
			return nil, nil, fmt.Errorf("cachepool: building pool for %s: %w", ep, err)
		}
		nodes = append(nodes, newNode(ep, sp, p.cfg.Socket.PingTimeout, p.onNodeFailed))
	}

	lnodes := make([]locator.Node, len(nodes))
	for i, n := range nodes {
		lnodes[i] = n
	}
	return nodes, lnodes, nil
}

func (p *Pool) buildBasicState(cfg *ClusterConfig) (*InternalState, error) {
	nodes, lnodes, err := p.buildNodes(cfg.Endpoints(p.cfg.PortType))
	if err != nil {
		return nil, err
	}
	loc := locator.NewKetamaLocator()
	loc.Initialize(lnodes)
	return &InternalState{
		CurrentNodes: nodes,
		Locator:      loc,
		OpFactory:    basicOperationFactory{},
	}, nil
}

func (p *Pool) buildVBucketState(cfg *ClusterConfig) (*InternalState, error) {
	m := cfg.VBucketServerMap
	nodes, lnodes, err := p.buildNodes(m.ServerList)
	if err != nil {
		return nil, err
	}

	loc, err := locator.NewVBucketLocator(m, lnodes)
	if err != nil {
		for _, n := range nodes {
			n.Dispose()
		}
		return nil, &InvalidConfigurationError{Reason: err.Error()}
	}

	st := &InternalState{
		CurrentNodes: nodes,
		Locator:      loc,
		OpFactory:    vbucketOperationFactory{loc: loc},
	}

	// A forward map rides along during rebalance; it shares the node
	// handles, so a broken one degrades to no forward routing rather than
	// rejecting the whole snapshot.
	if fwd := m.Forward(); fwd != nil {
		floc, err := locator.NewVBucketLocator(fwd, lnodes)
		if err != nil {
			p.log.WithError(err).Warn("ignoring malformed forward vbucket map")
		} else {
			st.ForwardLocator = floc
		}
	}
	return st, nil
}
