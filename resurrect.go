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

// Resurrection timer: a single one-shot timer, created lazily on the first
// node failure and rearmed manually. At most one probe pass is in flight at
// a time, probe frequency is bounded to once per deadTimeout, and nodes
// dying in close succession are all covered by the next pass. Dead nodes
// stay in the membership; only a config snapshot changes it.

package cachepool

import (
	"time"

	"cachepool/telemetry"
)

// onNodeFailed is the single subscriber for every node's failure event.
// It arms the resurrection timer unless a pass is already pending; the
// timerActive flag is double-checked under the reconfigure lock.
func (p *Pool) onNodeFailed(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Events from handles retired by a concurrent swap are dropped.
	if p.disposed || n.detached.Load() {
		return
	}
	if p.timerActive {
		return
	}

	if p.rezTimer == nil {
		p.rezTimer = time.AfterFunc(p.cfg.Socket.DeadTimeout, p.rezCallback)
	} else {
		p.rezTimer.Reset(p.cfg.Socket.DeadTimeout)
	}
	p.timerActive = true
	p.log.WithField("node", n.Endpoint()).Debug("resurrection timer armed")
}

// rezCallback runs one probe pass: ping every dead node in the current
// state, sequentially, under the reconfigure lock. While any node remains
// dead the timer is rearmed; once all recover it is left at rest. Probe
// failures are absorbed — the node simply stays dead until the next pass.
func (p *Pool) rezCallback() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed || !p.timerActive {
		return
	}

	st := p.state.Load()
	if st == nil {
		p.timerActive = false
		return
	}

	revived, stillDead := 0, 0
	for _, n := range st.CurrentNodes {
		if n.IsAlive() {
			continue
		}
		if n.Ping() {
			revived++
			p.log.WithField("node", n.Endpoint()).Info("node revived")
		} else {
			stillDead++
		}
	}
	telemetry.ObserveResurrectionPass(revived, stillDead)

	if stillDead > 0 {
		p.rezTimer.Reset(p.cfg.Socket.DeadTimeout)
	} else {
		p.timerActive = false
	}
}

// suspendTimerLocked parks the timer across a state swap. Callers hold mu.
func (p *Pool) suspendTimerLocked() {
	if p.rezTimer != nil {
		p.rezTimer.Stop()
	}
	p.timerActive = false
}
