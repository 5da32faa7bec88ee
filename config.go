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
	"fmt"

	"cachepool/locator"
)

// PortType selects which advertised port a classic deployment routes to.
type PortType string

const (
	PortProxy  PortType = "proxy"
	PortDirect PortType = "direct"
)

// NodePorts carries the two ports a classic node advertises.
type NodePorts struct {
	Proxy  int `json:"proxy"`
	Direct int `json:"direct"`
}

// NodeConfig is one node descriptor from a classic cluster snapshot.
type NodeConfig struct {
	HostName string    `json:"hostname"`
	Ports    NodePorts `json:"ports"`
	Status   string    `json:"status"`
}

// healthyStatus is the only node status eligible for routing in the classic
// form; warmup/failover states are excluded until the next snapshot.
const healthyStatus = "healthy"

// ClusterConfig is one cluster topology snapshot as delivered by the config
// stream. Exactly one of the two forms is meaningful: when VBucketServerMap
// is present the snapshot describes a partitioned deployment and Nodes is
// ignored for routing.
type ClusterConfig struct {
	Name             string                    `json:"name,omitempty"`
	Nodes            []NodeConfig              `json:"nodes,omitempty"`
	VBucketServerMap *locator.VBucketServerMap `json:"vBucketServerMap,omitempty"`
}

// Endpoints resolves the snapshot's routable endpoints for the given port
// type, preserving order. Classic nodes are filtered to healthy status;
// vbucket server lists are already host:port and pass through verbatim
// (order carries the map indices, so it must not be disturbed).
func (c *ClusterConfig) Endpoints(portType PortType) []string {
	if c.VBucketServerMap != nil {
		return c.VBucketServerMap.ServerList
	}

	endpoints := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Status != healthyStatus {
			continue
		}
		port := n.Ports.Direct
		if portType == PortProxy {
			port = n.Ports.Proxy
		}
		endpoints = append(endpoints, fmt.Sprintf("%s:%d", n.HostName, port))
	}
	return endpoints
}

// ConfigSource delivers a sequence of cluster snapshots. The pool manager
// registers its callback before Start; a nil snapshot empties the pool.
// Implementations deliver snapshots from a single goroutine.
type ConfigSource interface {
	Start() error
	Stop()
	OnConfigChanged(func(*ClusterConfig))
}
