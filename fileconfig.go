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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SocketConfig carries the externally supplied socket-layer settings the
// pool derives its timeouts from.
type SocketConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	// DeadTimeout is both the resurrection probe period and the retry
	// backoff of the config stream.
	DeadTimeout time.Duration `yaml:"dead_timeout"`
}

// ClientConfig is the static client-side configuration: where to fetch the
// cluster topology, which bucket to attach to, and socket settings.
type ClientConfig struct {
	PoolURLs       []string     `yaml:"pool_urls"`
	Bucket         string       `yaml:"bucket"`
	BucketPassword string       `yaml:"bucket_password"`
	PortType       PortType     `yaml:"port_type"`
	// StartTimeout bounds how long Start waits for the first snapshot.
	// Zero waits forever.
	StartTimeout time.Duration `yaml:"start_timeout"`
	Socket       SocketConfig  `yaml:"socket"`
}

// yamlDuration accepts "500ms"-style strings (or raw integer nanoseconds)
// since yaml.v3 has no native time.Duration decoding.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = yamlDuration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("cachepool: bad duration %q: %w", s, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// UnmarshalYAML decodes through a shadow struct so the duration fields keep
// their plain time.Duration type for the rest of the package.
func (c *ClientConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PoolURLs       []string     `yaml:"pool_urls"`
		Bucket         string       `yaml:"bucket"`
		BucketPassword string       `yaml:"bucket_password"`
		PortType       PortType     `yaml:"port_type"`
		StartTimeout   yamlDuration `yaml:"start_timeout"`
		Socket         struct {
			ConnectTimeout yamlDuration `yaml:"connect_timeout"`
			PingTimeout    yamlDuration `yaml:"ping_timeout"`
			DeadTimeout    yamlDuration `yaml:"dead_timeout"`
		} `yaml:"socket"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	c.PoolURLs = raw.PoolURLs
	c.Bucket = raw.Bucket
	c.BucketPassword = raw.BucketPassword
	c.PortType = raw.PortType
	c.StartTimeout = time.Duration(raw.StartTimeout)
	c.Socket = SocketConfig{
		ConnectTimeout: time.Duration(raw.Socket.ConnectTimeout),
		PingTimeout:    time.Duration(raw.Socket.PingTimeout),
		DeadTimeout:    time.Duration(raw.Socket.DeadTimeout),
	}
	return nil
}

// LoadClientConfig reads a YAML client configuration, applies defaults, and
// validates it.
func LoadClientConfig(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cachepool: read config: %w", err)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("cachepool: parse config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with production defaults.
func (c *ClientConfig) ApplyDefaults() {
	if c.PortType == "" {
		c.PortType = PortDirect
	}
	if c.Socket.ConnectTimeout <= 0 {
		c.Socket.ConnectTimeout = 10 * time.Second
	}
	if c.Socket.PingTimeout <= 0 {
		c.Socket.PingTimeout = 2 * time.Second
	}
	if c.Socket.DeadTimeout <= 0 {
		c.Socket.DeadTimeout = 10 * time.Second
	}
}

// Validate rejects configurations the pool cannot start from.
func (c *ClientConfig) Validate() error {
	if len(c.PoolURLs) == 0 {
		return &InvalidConfigurationError{Reason: "At least 1 pool url must be specified."}
	}
	switch c.PortType {
	case PortProxy, PortDirect:
	default:
		return &InvalidConfigurationError{Reason: fmt.Sprintf("unknown port type %q", c.PortType)}
	}
	return nil
}
