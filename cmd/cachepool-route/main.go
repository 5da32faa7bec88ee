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

// Package main is a routing demo for the cachepool library. It connects to
// a live configuration stream (see tools/configd for a local one), waits
// for the first topology, and prints where a set of sample keys would be
// routed. Useful for verifying a cluster config end to end without a
// protocol layer.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"cachepool"
	"cachepool/configstream"
	"cachepool/telemetry"
)

// tcpDialer is demo glue for the external socket layer: "ping" is a fresh
// TCP connect bounded by the caller's context.
type tcpDialer struct{}

type tcpPool struct {
	endpoint string
}

func (tcpDialer) NewPool(endpoint string) (cachepool.SocketPool, error) {
	return &tcpPool{endpoint: endpoint}, nil
}

func (p *tcpPool) Ping(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *tcpPool) Close() error { return nil }

func main() {
	var (
		configPath  string
		keys        []string
		metricsAddr string
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "cachepool-route",
		Short: "Route sample keys against a live cluster configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}

			cfg, err := cachepool.LoadClientConfig(configPath)
			if err != nil {
				return err
			}

			var creds *configstream.Credentials
			if user := os.Getenv("CACHEPOOL_HTTP_USER"); user != "" {
				creds = &configstream.Credentials{
					Username: user,
					Password: os.Getenv("CACHEPOOL_HTTP_PASSWORD"),
				}
			}
			listener, err := configstream.New(cfg.PoolURLs, cfg.Bucket, configstream.Options{
				Timeout:     cfg.Socket.ConnectTimeout,
				DeadTimeout: cfg.Socket.DeadTimeout,
				Credentials: creds,
			})
			if err != nil {
				return err
			}

			pool, err := cachepool.NewPool(*cfg, listener, tcpDialer{})
			if err != nil {
				return err
			}
			defer pool.Dispose()

			if metricsAddr != "" {
				telemetry.StartMetricsEndpoint(metricsAddr)
			}

			logrus.Info("waiting for first cluster configuration...")
			if err := pool.Start(); err != nil {
				return err
			}

			working := pool.WorkingNodes()
			fmt.Printf("cluster up: %d working node(s)\n", len(working))
			for _, n := range working {
				fmt.Printf("  %s\n", n.Endpoint())
			}

			factory := pool.OperationFactory()
			for _, key := range keys {
				node, err := pool.Locate(key)
				if err != nil {
					fmt.Printf("%-24s -> %v\n", key, err)
					continue
				}
				op := factory.Get(key)
				if vop, ok := op.(cachepool.VBucketAwareOperation); ok {
					fmt.Printf("%-24s -> %s (vbucket %d, replicas %v)\n",
						key, node.Endpoint(), vop.VBucket(), vop.ReplicaEndpoints())
				} else {
					fmt.Printf("%-24s -> %s\n", key, node.Endpoint())
				}
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			logrus.Info("following configuration updates; Ctrl+C to exit")
			<-sig
			return nil
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "cachepool.yaml", "client configuration file")
	root.Flags().StringSliceVarP(&keys, "keys", "k", []string{"user:1001", "session:abc", "cart:42"}, "sample keys to route")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus /metrics on this address")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	// Optional .env for CACHEPOOL_HTTP_USER / CACHEPOOL_HTTP_PASSWORD.
	_ = godotenv.Load()

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("cachepool-route failed")
	}
}
