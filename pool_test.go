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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cachepool/locator"
)

// fakeSource delivers snapshots synchronously: the initial one from Start,
// later ones via push.
type fakeSource struct {
	initial *ClusterConfig
	cb      func(*ClusterConfig)
	stopped atomic.Bool
}

func (s *fakeSource) Start() error {
	if s.initial != nil {
		s.cb(s.initial)
	}
	return nil
}
func (s *fakeSource) Stop()                               { s.stopped.Store(true) }
func (s *fakeSource) OnConfigChanged(f func(*ClusterConfig)) { s.cb = f }
func (s *fakeSource) push(cfg *ClusterConfig)             { s.cb(cfg) }

type fakeSocketPool struct {
	endpoint string
	pings    atomic.Int32
	closes   atomic.Int32

	mu      sync.Mutex
	pingErr error
}

func (p *fakeSocketPool) Ping(ctx context.Context) error {
	p.pings.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pingErr
}

func (p *fakeSocketPool) Close() error {
	p.closes.Add(1)
	return nil
}

func (p *fakeSocketPool) setPingErr(err error) {
	p.mu.Lock()
	p.pingErr = err
	p.mu.Unlock()
}

type fakeDialer struct {
	mu      sync.Mutex
	created []*fakeSocketPool
	failFor map[string]error
}

func (d *fakeDialer) NewPool(endpoint string) (SocketPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failFor[endpoint]; err != nil {
		return nil, err
	}
	p := &fakeSocketPool{endpoint: endpoint}
	d.created = append(d.created, p)
	return p, nil
}

func (d *fakeDialer) poolsFor(endpoint string) []*fakeSocketPool {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeSocketPool
	for _, p := range d.created {
		if p.endpoint == endpoint {
			out = append(out, p)
		}
	}
	return out
}

func testClientConfig(deadTimeout time.Duration) ClientConfig {
	return ClientConfig{
		PoolURLs: []string{"http://127.0.0.1:8091/pools"},
		Socket: SocketConfig{
			ConnectTimeout: time.Second,
			PingTimeout:    time.Second,
			DeadTimeout:    deadTimeout,
		},
		StartTimeout: 5 * time.Second,
	}
}

func classicConfig(hosts ...string) *ClusterConfig {
	cfg := &ClusterConfig{}
	for _, h := range hosts {
		cfg.Nodes = append(cfg.Nodes, NodeConfig{
			HostName: h,
			Ports:    NodePorts{Proxy: 11211, Direct: 11210},
			Status:   healthyStatus,
		})
	}
	return cfg
}

func startedPool(t *testing.T, deadTimeout time.Duration, initial *ClusterConfig) (*Pool, *fakeSource, *fakeDialer) {
	t.Helper()
	source := &fakeSource{initial: initial}
	dialer := &fakeDialer{}
	pool, err := NewPool(testClientConfig(deadTimeout), source, dialer)
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Dispose)
	return pool, source, dialer
}

func TestPool_StartPublishesFirstState(t *testing.T) {
	pool, _, _ := startedPool(t, time.Second, classicConfig("a", "b", "c"))

	if got := len(pool.WorkingNodes()); got != 3 {
		t.Fatalf("WorkingNodes = %d, want 3", got)
	}
	node, err := pool.Locate("some-key")
	if err != nil {
		t.Fatal(err)
	}
	if !node.IsAlive() {
		t.Fatal("freshly built node must be alive")
	}
	if pool.OperationFactory() == nil {
		t.Fatal("no operation factory published")
	}
}

func TestPool_RejectsEmptyURLSet(t *testing.T) {
	_, err := NewPool(ClientConfig{}, &fakeSource{}, &fakeDialer{})
	var invalid *InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidConfigurationError", err)
	}
	if invalid.Reason != "At least 1 pool url must be specified." {
		t.Fatalf("reason = %q", invalid.Reason)
	}
}

func TestPool_StartSurfacesFirstConfigError(t *testing.T) {
	bad := &ClusterConfig{
		VBucketServerMap: &locator.VBucketServerMap{
			ServerList: []string{"s0:11210", "s1:11210"},
			VBucketMap: [][]int{{0}, {5}, {1}, {0}}, // master out of range
		},
	}
	pool, err := NewPool(testClientConfig(time.Second), &fakeSource{initial: bad}, &fakeDialer{})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Dispose()

	var invalid *InvalidConfigurationError
	if err := pool.Start(); !errors.As(err, &invalid) {
		t.Fatalf("Start = %v, want InvalidConfigurationError", err)
	}
}

// Scenario: a 3-node config replaced by a 2-node config sharing one
// endpoint. The previous handles get exactly one dispose each; the new
// handles are fresh instances even for the shared endpoint.
func TestPool_ConfigSwapDisposesPreviousNodes(t *testing.T) {
	pool, source, dialer := startedPool(t, time.Second, classicConfig("a", "b", "c"))

	oldNodes := pool.WorkingNodes()
	if len(oldNodes) != 3 {
		t.Fatalf("precondition: %d nodes", len(oldNodes))
	}
	oldPools := append([]*fakeSocketPool(nil), dialer.created...)

	source.push(classicConfig("a", "d"))

	newNodes := pool.WorkingNodes()
	if len(newNodes) != 2 {
		t.Fatalf("WorkingNodes after swap = %d, want 2", len(newNodes))
	}
	for _, old := range oldNodes {
		for _, fresh := range newNodes {
			if fresh == old {
				t.Fatalf("node handle %s survived the swap", old.Endpoint())
			}
		}
	}
	for _, p := range oldPools {
		if got := p.closes.Load(); got != 1 {
			t.Fatalf("pool %s closed %d times, want exactly 1", p.endpoint, got)
		}
	}
	// The shared endpoint got a brand-new socket pool.
	if pools := dialer.poolsFor("a:11210"); len(pools) != 2 {
		t.Fatalf("endpoint a:11210 has %d pools, want 2 (one per state)", len(pools))
	}
}

func TestPool_NilConfigPublishesEmptyState(t *testing.T) {
	pool, source, dialer := startedPool(t, time.Second, classicConfig("a"))

	source.push(nil)

	if _, err := pool.Locate("key"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Locate on empty state = %v, want ErrNoRoute", err)
	}
	if len(pool.WorkingNodes()) != 0 {
		t.Fatal("empty state still has working nodes")
	}
	for _, p := range dialer.created {
		if p.closes.Load() != 1 {
			t.Fatalf("pool %s not disposed on empty swap", p.endpoint)
		}
	}
}

// Scenario: two nodes fail close together. Exactly one probe pass runs at
// ~deadTimeout covering both; when both recover the timer comes to rest.
func TestPool_ResurrectionSinglePassCoversBothFailures(t *testing.T) {
	const deadTimeout = 100 * time.Millisecond
	pool, _, dialer := startedPool(t, deadTimeout, classicConfig("a", "b"))

	nodes := pool.WorkingNodes()
	if len(nodes) != 2 {
		t.Fatalf("precondition: %d nodes", len(nodes))
	}

	nodes[0].MarkFailed(ErrNodeUnreachable)
	time.Sleep(10 * time.Millisecond)
	nodes[1].MarkFailed(ErrNodeUnreachable)

	if len(pool.WorkingNodes()) != 0 {
		t.Fatal("dead nodes still listed as working")
	}
	if _, err := pool.Locate("key"); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("Locate with all nodes dead = %v, want ErrNoRoute", err)
	}

	// One pass at ~deadTimeout revives both (pings succeed).
	time.Sleep(3 * deadTimeout)
	for _, p := range dialer.created {
		if got := p.pings.Load(); got != 1 {
			t.Fatalf("pool %s probed %d times, want exactly 1", p.endpoint, got)
		}
	}
	if len(pool.WorkingNodes()) != 2 {
		t.Fatal("nodes not revived by the probe pass")
	}

	// Timer is at rest: no further probes.
	time.Sleep(2 * deadTimeout)
	for _, p := range dialer.created {
		if got := p.pings.Load(); got != 1 {
			t.Fatalf("timer kept firing: pool %s probed %d times", p.endpoint, got)
		}
	}
}

func TestPool_ResurrectionRearmsWhileNodesStayDead(t *testing.T) {
	const deadTimeout = 80 * time.Millisecond
	pool, _, dialer := startedPool(t, deadTimeout, classicConfig("a"))

	node := pool.WorkingNodes()[0]
	probe := dialer.created[0]
	probe.setPingErr(ErrNodeUnreachable)
	node.MarkFailed(ErrNodeUnreachable)

	// At least two passes while the node stays dead.
	time.Sleep(5 * deadTimeout)
	if got := probe.pings.Load(); got < 2 {
		t.Fatalf("only %d probe passes for a persistently dead node", got)
	}
	if node.IsAlive() {
		t.Fatal("node revived despite failing pings")
	}

	// Once the node answers, the next pass revives it and the timer rests.
	probe.setPingErr(nil)
	time.Sleep(3 * deadTimeout)
	if !node.IsAlive() {
		t.Fatal("node not revived after pings recovered")
	}
	settled := probe.pings.Load()
	time.Sleep(3 * deadTimeout)
	if got := probe.pings.Load(); got != settled {
		t.Fatalf("timer still firing after full recovery: %d -> %d", settled, got)
	}
}

// Failure events from handles retired by a swap are dropped: they must not
// arm the timer or probe anything.
func TestPool_DetachedNodeEventsAreDropped(t *testing.T) {
	const deadTimeout = 60 * time.Millisecond
	pool, source, dialer := startedPool(t, deadTimeout, classicConfig("a"))

	old := pool.WorkingNodes()[0]
	source.push(classicConfig("b"))

	old.MarkFailed(ErrNodeUnreachable)

	time.Sleep(3 * deadTimeout)
	for _, p := range dialer.created {
		if p.pings.Load() != 0 {
			t.Fatalf("detached node's failure triggered probes on %s", p.endpoint)
		}
	}
}

func TestPool_VBucketStateRoutesAndStampsOperations(t *testing.T) {
	m := &locator.VBucketServerMap{
		HashAlgorithm: "CRC",
		ServerList:    []string{"s0:11210", "s1:11210", "s2:11210"},
		VBucketMap:    [][]int{{0, 1}, {1, 2}, {2, 0}, {0, 2}},
	}
	pool, _, _ := startedPool(t, time.Second, &ClusterConfig{VBucketServerMap: m})

	key := "x"
	b := int(locator.CRCHash([]byte(key)) & 3)
	wantMaster := m.ServerList[m.VBucketMap[b][0]]

	node, err := pool.Locate(key)
	if err != nil {
		t.Fatal(err)
	}
	if node.Endpoint() != wantMaster {
		t.Fatalf("Locate(%q) = %s, want %s (bucket %d)", key, node.Endpoint(), wantMaster, b)
	}

	op := pool.OperationFactory().Get(key)
	vop, ok := op.(VBucketAwareOperation)
	if !ok {
		t.Fatalf("vbucket path produced a plain operation: %T", op)
	}
	if vop.VBucket() != b {
		t.Fatalf("operation stamped with bucket %d, want %d", vop.VBucket(), b)
	}
	wantReplica := m.ServerList[m.VBucketMap[b][1]]
	if reps := vop.ReplicaEndpoints(); len(reps) != 1 || reps[0] != wantReplica {
		t.Fatalf("replica endpoints = %v, want [%s]", reps, wantReplica)
	}
}

func TestPool_ForwardLocatorPopulatedFromForwardMap(t *testing.T) {
	m := &locator.VBucketServerMap{
		HashAlgorithm:     "CRC",
		ServerList:        []string{"s0:11210", "s1:11210"},
		VBucketMap:        [][]int{{0}, {1}, {0}, {1}},
		VBucketMapForward: [][]int{{1}, {0}, {1}, {0}},
	}
	pool, _, _ := startedPool(t, time.Second, &ClusterConfig{VBucketServerMap: m})

	st := pool.state.Load()
	if st.ForwardLocator == nil {
		t.Fatal("forward map present but ForwardLocator not populated")
	}
	if got := st.ForwardLocator.LocateByVBucket(0); got.Endpoint() != "s1:11210" {
		t.Fatalf("forward locator routes vbucket 0 to %s", got.Endpoint())
	}
}

func TestPool_RejectedSnapshotKeepsPreviousState(t *testing.T) {
	pool, source, _ := startedPool(t, time.Second, classicConfig("a", "b"))

	source.push(&ClusterConfig{
		VBucketServerMap: &locator.VBucketServerMap{
			ServerList: []string{"s0:11210"},
			VBucketMap: [][]int{{0}, {7}},
		},
	})

	if got := len(pool.WorkingNodes()); got != 2 {
		t.Fatalf("previous state lost after rejected snapshot: %d nodes", got)
	}
}

func TestPool_DisposeStopsSourceAndPublishesNil(t *testing.T) {
	pool, source, dialer := startedPool(t, time.Second, classicConfig("a", "b"))

	pool.Dispose()
	pool.Dispose() // idempotent

	if !source.stopped.Load() {
		t.Fatal("config source not stopped")
	}
	if _, err := pool.Locate("key"); !errors.Is(err, ErrPoolDisposed) {
		t.Fatalf("Locate after dispose = %v, want ErrPoolDisposed", err)
	}
	if pool.OperationFactory() != nil {
		t.Fatal("factory still published after dispose")
	}
	for _, p := range dialer.created {
		if p.closes.Load() != 1 {
			t.Fatalf("pool %s closed %d times", p.endpoint, p.closes.Load())
		}
	}
}

func TestPool_DialFailureRejectsSnapshot(t *testing.T) {
	source := &fakeSource{initial: classicConfig("a", "b")}
	dialer := &fakeDialer{failFor: map[string]error{"b:11210": ErrNodeUnreachable}}
	pool, err := NewPool(testClientConfig(time.Second), source, dialer)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Dispose()

	if err := pool.Start(); err == nil {
		t.Fatal("Start must surface the dial failure of the first snapshot")
	}
	// The node built before the failure was cleaned up.
	for _, p := range dialer.created {
		if p.closes.Load() != 1 {
			t.Fatalf("partially built node %s leaked", p.endpoint)
		}
	}
}
