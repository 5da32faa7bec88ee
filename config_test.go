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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cachepool/locator"
)

func TestClusterConfig_EndpointsFilterAndPortType(t *testing.T) {
	cfg := &ClusterConfig{Nodes: []NodeConfig{
		{HostName: "a", Ports: NodePorts{Proxy: 11211, Direct: 11210}, Status: "healthy"},
		{HostName: "b", Ports: NodePorts{Proxy: 11211, Direct: 11210}, Status: "warmup"},
		{HostName: "c", Ports: NodePorts{Proxy: 11211, Direct: 11210}, Status: "healthy"},
	}}

	direct := cfg.Endpoints(PortDirect)
	if len(direct) != 2 || direct[0] != "a:11210" || direct[1] != "c:11210" {
		t.Fatalf("direct endpoints = %v", direct)
	}
	proxy := cfg.Endpoints(PortProxy)
	if len(proxy) != 2 || proxy[0] != "a:11211" {
		t.Fatalf("proxy endpoints = %v", proxy)
	}
}

// VBucket server lists pass through verbatim: their order carries the map
// indices.
func TestClusterConfig_VBucketEndpointsPreserveOrder(t *testing.T) {
	cfg := &ClusterConfig{
		Nodes: []NodeConfig{{HostName: "ignored", Status: "healthy"}},
		VBucketServerMap: &locator.VBucketServerMap{
			ServerList: []string{"s1:11210", "s0:11210"},
		},
	}
	eps := cfg.Endpoints(PortDirect)
	if len(eps) != 2 || eps[0] != "s1:11210" || eps[1] != "s0:11210" {
		t.Fatalf("endpoints = %v", eps)
	}
}

func TestLoadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cachepool.yaml")
	raw := `
pool_urls:
  - http://cfg1:8091/pools
  - http://cfg2:8091/pools
bucket: sessions
bucket_password: hunter2
port_type: proxy
socket:
  dead_timeout: 500ms
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.PoolURLs) != 2 || cfg.Bucket != "sessions" || cfg.PortType != PortProxy {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Socket.DeadTimeout != 500*time.Millisecond {
		t.Fatalf("dead_timeout = %v", cfg.Socket.DeadTimeout)
	}
	// Unset fields get defaults.
	if cfg.Socket.ConnectTimeout != 10*time.Second || cfg.Socket.PingTimeout != 2*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg.Socket)
	}
}

func TestLoadClientConfig_RequiresPoolURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cachepool.yaml")
	if err := os.WriteFile(path, []byte("bucket: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadClientConfig(path)
	var invalid *InvalidConfigurationError
	if !errors.As(err, &invalid) {
		t.Fatalf("err = %v, want InvalidConfigurationError", err)
	}
	if invalid.Reason != "At least 1 pool url must be specified." {
		t.Fatalf("reason = %q", invalid.Reason)
	}
}

func TestClientConfig_RejectsUnknownPortType(t *testing.T) {
	cfg := ClientConfig{PoolURLs: []string{"http://x:8091"}, PortType: "sideways"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown port type must be rejected")
	}
}
