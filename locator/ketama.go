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

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
	"strconv"
)

// pointsPerDigest is how many 32-bit ring points one MD5 digest yields.
const pointsPerDigest = 4

// digestsPerNode is how many digests are computed per node, giving
// digestsPerNode*pointsPerDigest virtual points on the ring.
const digestsPerNode = 40

type ringPoint struct {
	hash uint32
	node Node
}

// KetamaLocator places 160 virtual points per node on a 32-bit ring and
// routes each key to the owner of the first point at or after the key's
// hash. Membership is fixed at Initialize; dead nodes are skipped along the
// ring at lookup time, which keeps every live node's arcs stable across
// failures.
type KetamaLocator struct {
	ring  []ringPoint
	nodes []Node
}

// NewKetamaLocator returns an empty locator. Locate on an uninitialized
// locator always returns nil.
func NewKetamaLocator() *KetamaLocator { return &KetamaLocator{} }

// Initialize rebuilds the ring for the given membership. It is called once
// per cluster configuration; liveness changes never trigger a rebuild.
func (l *KetamaLocator) Initialize(nodes []Node) {
	l.nodes = nodes
	l.ring = make([]ringPoint, 0, len(nodes)*digestsPerNode*pointsPerDigest)

	for _, n := range nodes {
		label := n.Endpoint()
		for i := 0; i < digestsPerNode; i++ {
			digest := md5.Sum([]byte(label + "-" + strconv.Itoa(i)))
			for p := 0; p < pointsPerDigest; p++ {
				point := binary.LittleEndian.Uint32(digest[p*4:])
				l.ring = append(l.ring, ringPoint{hash: point, node: n})
			}
		}
	}

	// Ties keep insertion order.
	sort.SliceStable(l.ring, func(i, j int) bool { return l.ring[i].hash < l.ring[j].hash })
}

// Locate returns the node owning key's arc, skipping dead nodes along the
// ring. Returns nil when the ring is empty or every node is dead.
func (l *KetamaLocator) Locate(key string) Node {
	if len(l.ring) == 0 {
		return nil
	}

	h := KetamaHash(key)
	idx := sort.Search(len(l.ring), func(i int) bool { return l.ring[i].hash >= h })
	if idx == len(l.ring) {
		idx = 0
	}

	for i := 0; i < len(l.ring); i++ {
		n := l.ring[(idx+i)%len(l.ring)].node
		if n.IsAlive() {
			return n
		}
	}
	return nil
}

// WorkingNodes returns the alive subset of the membership.
func (l *KetamaLocator) WorkingNodes() []Node {
	working := make([]Node, 0, len(l.nodes))
	for _, n := range l.nodes {
		if n.IsAlive() {
			working = append(working, n)
		}
	}
	return working
}

// KetamaHash is the 32-bit key hash used for ring lookups: the first four
// bytes of the key's MD5 digest, little-endian. It must match the point
// derivation above and the hash used by interoperating clients.
func KetamaHash(key string) uint32 {
	digest := md5.Sum([]byte(key))
	return binary.LittleEndian.Uint32(digest[:4])
}
