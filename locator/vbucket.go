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

package locator

import "fmt"

// VBucketServerMap is the server-supplied partition map for a vbucket
// deployment. ServerList order is significant: vbucket vectors index into
// it, so consumers must preserve it when resolving nodes.
type VBucketServerMap struct {
	HashAlgorithm     string   `json:"hashAlgorithm"`
	NumReplicas       int      `json:"numReplicas"`
	ServerList        []string `json:"serverList"`
	VBucketMap        [][]int  `json:"vBucketMap"`
	VBucketMapForward [][]int  `json:"vBucketMapForward,omitempty"`
}

// Forward returns a map whose active vectors are the pending (rebalance)
// map, or nil when the config carries none.
func (m *VBucketServerMap) Forward() *VBucketServerMap {
	if len(m.VBucketMapForward) == 0 {
		return nil
	}
	fwd := *m
	fwd.VBucketMap = m.VBucketMapForward
	fwd.VBucketMapForward = nil
	return &fwd
}

// VBucket is one keyspace partition: a master index into the server list
// plus zero or more replica indices. Immutable once built.
type VBucket struct {
	Master   int
	Replicas []int
}

// VBucketLocator routes key -> vbucket -> master node using a fixed,
// validated map. It never substitutes replicas for a dead master; replica
// fallback belongs to the operation layer, which can read Replicas.
type VBucketLocator struct {
	nodes   []Node
	buckets []VBucket
	hash    HashFunc
	mask    uint32
}

// NewVBucketLocator validates the map and binds it to the resolved nodes.
// nodes must be in ServerList order. The bucket count must be a power of
// two and every master index must fall inside the server list.
func NewVBucketLocator(m *VBucketServerMap, nodes []Node) (*VBucketLocator, error) {
	if len(nodes) != len(m.ServerList) {
		return nil, fmt.Errorf("locator: %d nodes resolved for %d servers", len(nodes), len(m.ServerList))
	}
	n := len(m.VBucketMap)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("locator: vbucket count %d is not a power of two", n)
	}
	hash, err := HashForAlgorithm(m.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	buckets := make([]VBucket, n)
	for i, vec := range m.VBucketMap {
		if len(vec) == 0 {
			return nil, fmt.Errorf("locator: vbucket %d has an empty vector", i)
		}
		master := vec[0]
		if master < 0 || master >= len(m.ServerList) {
			return nil, fmt.Errorf("locator: vbucket %d master %d outside server list of %d", i, master, len(m.ServerList))
		}
		buckets[i] = VBucket{Master: master, Replicas: vec[1:]}
	}

	return &VBucketLocator{
		nodes:   nodes,
		buckets: buckets,
		hash:    hash,
		mask:    uint32(n - 1),
	}, nil
}

// BucketOf returns the vbucket index owning key.
func (l *VBucketLocator) BucketOf(key string) int {
	return int(l.hash([]byte(key)) & l.mask)
}

// Locate returns the master node for key's vbucket. The master is returned
// even when dead; callers decide whether to retry on replicas.
func (l *VBucketLocator) Locate(key string) Node {
	return l.nodes[l.buckets[l.BucketOf(key)].Master]
}

// LocateByVBucket returns the master node for an explicit vbucket index, or
// nil when the index is out of range.
func (l *VBucketLocator) LocateByVBucket(index int) Node {
	if index < 0 || index >= len(l.buckets) {
		return nil
	}
	return l.nodes[l.buckets[index].Master]
}

// Replicas returns the replica nodes for a vbucket index, skipping indices
// the map leaves unassigned.
func (l *VBucketLocator) Replicas(index int) []Node {
	if index < 0 || index >= len(l.buckets) {
		return nil
	}
	b := l.buckets[index]
	replicas := make([]Node, 0, len(b.Replicas))
	for _, r := range b.Replicas {
		if r >= 0 && r < len(l.nodes) {
			replicas = append(replicas, l.nodes[r])
		}
	}
	return replicas
}

// WorkingNodes returns the alive subset of the server list.
func (l *VBucketLocator) WorkingNodes() []Node {
	working := make([]Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		if n.IsAlive() {
			working = append(working, n)
		}
	}
	return working
}
