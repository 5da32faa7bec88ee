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

// Package telemetry exposes Prometheus metrics for the pool manager: config
// swaps, node failures, resurrection passes, and routing misses. Collectors
// are registered eagerly; if no endpoint is exposed, registration is
// harmless. All observe functions are safe on hot paths.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configSwapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_config_swaps_total",
		Help: "Total cluster configuration snapshots applied (state swaps)",
	})
	nodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_node_failures_total",
		Help: "Total node-down transitions reported by the connection layer",
	})
	resurrectionPassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_resurrection_passes_total",
		Help: "Total resurrection probe passes over dead nodes",
	})
	nodesRevivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_nodes_revived_total",
		Help: "Total dead nodes returned to service by a resurrection probe",
	})
	noRouteTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cachepool_no_route_total",
		Help: "Total locate calls that found no living node for the key",
	})
	currentNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cachepool_current_nodes",
		Help: "Nodes in the currently published routing state",
	})
	deadNodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cachepool_dead_nodes",
		Help: "Nodes currently marked dead, as of the last resurrection pass",
	})
)

func init() {
	prometheus.MustRegister(configSwapsTotal, nodeFailuresTotal, resurrectionPassesTotal,
		nodesRevivedTotal, noRouteTotal, currentNodes, deadNodes)
}

// ObserveConfigSwap records a published state and its node count.
func ObserveConfigSwap(nodeCount int) {
	configSwapsTotal.Inc()
	currentNodes.Set(float64(nodeCount))
	deadNodes.Set(0)
}

// ObserveNodeFailure records a node-down transition.
func ObserveNodeFailure() {
	nodeFailuresTotal.Inc()
}

// ObserveResurrectionPass records one probe pass and its outcome.
func ObserveResurrectionPass(revived, stillDead int) {
	resurrectionPassesTotal.Inc()
	nodesRevivedTotal.Add(float64(revived))
	deadNodes.Set(float64(stillDead))
}

// ObserveNoRoute records a locate call that returned no node.
func ObserveNoRoute() {
	noRouteTotal.Inc()
}

// StartMetricsEndpoint exposes /metrics on addr in a background goroutine.
// Leave it unused if a Prometheus endpoint is already exposed elsewhere.
func StartMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
