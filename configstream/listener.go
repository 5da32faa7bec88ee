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

// Package configstream delivers cluster configuration snapshots to the pool
// manager. A listener holds a long-lived HTTP connection to one of the
// configured pool URLs and reads JSON snapshots, each ended by a blank
// line; further blank lines are keep-alives. On stream failure it backs off
// for the dead timeout and rotates to the next URL.
package configstream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cachepool"
)

// Credentials are the optional HTTP basic credentials for the config
// endpoints.
type Credentials struct {
	Username string
	Password string
}

// Options tunes a Listener. Zero values get production defaults.
type Options struct {
	// Timeout bounds connection establishment and response headers. The
	// stream body itself is unbounded by design.
	Timeout time.Duration
	// DeadTimeout is the backoff before reconnecting after a stream error.
	DeadTimeout time.Duration
	Credentials *Credentials
}

// Listener streams cluster snapshots from a set of pool URLs and hands each
// decoded snapshot to the registered callback, from a single goroutine.
type Listener struct {
	urls        []*url.URL
	bucket      string
	timeout     time.Duration
	deadTimeout time.Duration
	client      *http.Client

	cb func(*cachepool.ClusterConfig)

	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	wg       sync.WaitGroup

	log *logrus.Entry
}

// New builds a listener over the given pool URLs. The bucket name, when
// non-empty, is appended to each URL path. An empty URL set is rejected.
func New(poolURLs []string, bucket string, opts Options) (*Listener, error) {
	if len(poolURLs) == 0 {
		return nil, &cachepool.InvalidConfigurationError{Reason: "At least 1 pool url must be specified."}
	}
	urls := make([]*url.URL, 0, len(poolURLs))
	for _, raw := range poolURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, &cachepool.InvalidConfigurationError{Reason: "malformed pool url: " + raw}
		}
		if bucket != "" {
			u = u.JoinPath(bucket)
		}
		urls = append(urls, u)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.DeadTimeout <= 0 {
		opts.DeadTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
	}
	l := &Listener{
		urls:        urls,
		bucket:      bucket,
		timeout:     opts.Timeout,
		deadTimeout: opts.DeadTimeout,
		client:      &http.Client{Transport: transport},
		stopCh:      make(chan struct{}),
		log:         logrus.WithField("component", "configstream"),
	}
	if opts.Credentials != nil {
		creds := *opts.Credentials
		transportWithAuth := l.client.Transport
		l.client.Transport = roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			req.SetBasicAuth(creds.Username, creds.Password)
			return transportWithAuth.RoundTrip(req)
		})
	}
	return l, nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// OnConfigChanged registers the snapshot callback. Must be called before
// Start.
func (l *Listener) OnConfigChanged(cb func(*cachepool.ClusterConfig)) {
	l.cb = cb
}

// Timeout returns the connection/header timeout.
func (l *Listener) Timeout() time.Duration { return l.timeout }

// DeadTimeout returns the reconnect backoff.
func (l *Listener) DeadTimeout() time.Duration { return l.deadTimeout }

// Start launches the streaming loop. It returns immediately; connection
// failures are retried with the dead-timeout backoff.
func (l *Listener) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return nil
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run()
	}()
	return nil
}

// Stop terminates the streaming loop and waits for it to exit. Idempotent.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// run cycles across the pool URLs until stopped. Each successful stream is
// consumed until the server closes it or the listener stops.
func (l *Listener) run() {
	for i := 0; ; i++ {
		select {
		case <-l.stopCh:
			return
		default:
		}

		u := l.urls[i%len(l.urls)]
		if err := l.consume(u); err != nil {
			l.log.WithError(err).WithField("url", u.String()).Warn("config stream interrupted")
		}

		select {
		case <-l.stopCh:
			return
		case <-time.After(l.deadTimeout):
		}
	}
}

// consume reads one stream to exhaustion. Snapshots are terminated by blank
// lines; additional blank lines are keep-alives and are ignored.
func (l *Listener) consume(u *url.URL) error {
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &cachepool.InvalidConfigurationError{
			Reason: "config endpoint " + u.String() + " returned " + resp.Status,
		}
	}

	// Watch for Stop while blocked in a read: closing the body unblocks
	// the scanner.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-l.stopCh:
			resp.Body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var chunk bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			l.dispatch(chunk.Bytes())
			chunk.Reset()
			continue
		}
		chunk.Write(line)
		chunk.WriteByte('\n')
	}
	l.dispatch(chunk.Bytes())

	select {
	case <-l.stopCh:
		return nil
	default:
	}
	return scanner.Err()
}

// dispatch decodes one snapshot and delivers it. Undecodable snapshots are
// logged and skipped; the previous routing state stays in effect.
func (l *Listener) dispatch(raw []byte) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}
	var cfg cachepool.ClusterConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		l.log.WithError(err).Warn("skipping undecodable cluster snapshot")
		return
	}
	l.log.WithFields(logrus.Fields{
		"nodes":   len(cfg.Nodes),
		"vbucket": cfg.VBucketServerMap != nil,
	}).Debug("cluster snapshot received")
	if l.cb != nil {
		l.cb(&cfg)
	}
}

// BucketPath joins a pool URL with a bucket name the way New does; exported
// for tools that mirror the endpoint layout.
func BucketPath(poolURL, bucket string) string {
	return strings.TrimRight(poolURL, "/") + "/" + bucket
}
