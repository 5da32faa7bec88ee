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

// configd is a mock cluster-configuration server for local development. It
// streams a cluster snapshot in the format the configstream listener
// consumes: one JSON document followed by a blank line, re-sent on an
// interval as a keep-alive. Point cachepool-route's pool_urls at it to
// exercise the full ingest -> swap -> route path without a real cluster.
//
// Usage:
//
//	configd -addr :8091 -nodes 127.0.0.1:11211,127.0.0.1:11212
//	configd -addr :8091 -snapshot cluster.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"cachepool"
)

func main() {
	var (
		addr     = flag.String("addr", ":8091", "listen address")
		nodes    = flag.String("nodes", "127.0.0.1:11211", "comma-separated host:port list for a generated snapshot")
		snapshot = flag.String("snapshot", "", "path to a JSON snapshot to stream instead of generating one")
		interval = flag.Duration("interval", 10*time.Second, "re-send interval (keep-alive)")
	)
	flag.Parse()

	raw, err := loadSnapshot(*snapshot, *nodes)
	if err != nil {
		logrus.WithError(err).Fatal("building snapshot")
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/pools/{bucket}", streamHandler(raw, *interval))
	r.Get("/pools", streamHandler(raw, *interval))

	logrus.WithField("addr", *addr).Info("configd streaming cluster snapshots")
	server := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logrus.WithError(err).Fatal("configd exited")
	}
}

// loadSnapshot returns the snapshot bytes to stream: either a file's
// contents (validated) or a classic config generated from a node list.
func loadSnapshot(path, nodeList string) ([]byte, error) {
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var cfg cachepool.ClusterConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", path, err)
		}
		return raw, nil
	}

	cfg := cachepool.ClusterConfig{Name: "default"}
	for _, ep := range strings.Split(nodeList, ",") {
		host, port := ep, 11211
		if i := strings.LastIndex(ep, ":"); i >= 0 {
			host = ep[:i]
			fmt.Sscanf(ep[i+1:], "%d", &port)
		}
		cfg.Nodes = append(cfg.Nodes, cachepool.NodeConfig{
			HostName: host,
			Ports:    cachepool.NodePorts{Proxy: port, Direct: port},
			Status:   "healthy",
		})
	}
	return json.Marshal(cfg)
}

// streamHandler re-sends the snapshot on every tick until the client goes
// away, mirroring a real streaming config endpoint.
func streamHandler(raw []byte, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		flusher, _ := w.(http.Flusher)

		send := func() bool {
			if _, err := w.Write(append(raw, '\n', '\n')); err != nil {
				return false
			}
			if flusher != nil {
				flusher.Flush()
			}
			return true
		}
		if !send() {
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if !send() {
					return
				}
			}
		}
	}
}
