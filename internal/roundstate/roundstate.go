// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package roundstate tracks the judger's current round, its listen set,
// and the single deadline timer bound to round progress.
package roundstate

import (
	"sync"
	"time"
)

const (
	// initialState is the pre-game sentinel; logic's first real round is
	// always a different value.
	initialState = -1

	defaultRoundTimeLimit = 3 * time.Second
	defaultOutputLimit    = 2048
)

// Machine holds the judger's round-progress state. Its methods are called
// from several goroutines (the logic stdout loop, AI read loops, the
// deadline timer), and every method takes the mutex, so reads such as
// Listening and OutputLimit are safe alongside round transitions.
type Machine struct {
	mu sync.Mutex

	state          int
	roundTimeLimit time.Duration
	outputLimit    int
	listenTarget   []int
	roundBegin     time.Time

	timer *time.Timer
}

// New creates a round state machine at its pre-game defaults.
func New() *Machine {
	return &Machine{
		state:          initialState,
		roundTimeLimit: defaultRoundTimeLimit,
		outputLimit:    defaultOutputLimit,
	}
}

// State returns the current round state.
func (m *Machine) State() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OutputLimit returns the current per-frame output limit in bytes.
func (m *Machine) OutputLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputLimit
}

// RoundTimeLimit returns the current per-round deadline.
func (m *Machine) RoundTimeLimit() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roundTimeLimit
}

// Listening reports whether ai_id is in the current listen set.
func (m *Machine) Listening(aiID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.listenTarget {
		if id == aiID {
			return true
		}
	}
	return false
}

// Elapsed returns the time since the current round began.
func (m *Machine) Elapsed(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Sub(m.roundBegin)
}

// ApplyRoundConfig applies a RoundConfig control message: it updates the
// round time limit and may trigger a round transition. The message's
// length field is deliberately ignored, leaving the default output limit
// in force. Returns whether the round state changed and the time spent in
// the outgoing round (0 when leaving pre-game).
func (m *Machine) ApplyRoundConfig(now time.Time, newState int, newTimeLimit time.Duration) (changed bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newTimeLimit > 0 {
		m.roundTimeLimit = newTimeLimit
	}
	return m.transitionLocked(now, newState)
}

// ApplyRoundInfo applies a RoundInfo control message: it may trigger a
// round transition and always replaces the listen set with listen.
// Returns whether the round state changed and the time spent in the
// outgoing round (0 when leaving pre-game).
func (m *Machine) ApplyRoundInfo(now time.Time, newState int, listen []int) (changed bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed, elapsed = m.transitionLocked(now, newState)

	m.listenTarget = append([]int(nil), listen...)
	return changed, elapsed
}

// transitionLocked applies a round index change, resetting the
// round-begin clock. It returns the elapsed time spent in the outgoing
// round, read before roundBegin is overwritten, so the caller can journal
// NEW_ROUND with the prior round's duration. Arming the deadline timer is
// the caller's job (ArmDeadline), since the timer's callback needs access
// to state this package does not own.
func (m *Machine) transitionLocked(now time.Time, newState int) (changed bool, elapsed time.Duration) {
	if m.state == newState {
		return false, 0
	}
	elapsed = now.Sub(m.roundBegin)
	if m.state == initialState {
		elapsed = 0
	}
	m.state = newState
	m.roundBegin = now
	return true, elapsed
}

// ArmDeadline cancels any pending deadline timer and starts a new one for
// the current round time limit. onExpire receives the ai_id of the first
// entry in the listen set at the moment the deadline fires, and whether
// the listen set was empty. Always cancel-before-replace: at most one
// timer is ever pending.
func (m *Machine) ArmDeadline(onExpire func(firstListenTarget int, empty bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer != nil {
		m.timer.Stop()
	}
	limit := m.roundTimeLimit
	m.timer = time.AfterFunc(limit, func() {
		m.mu.Lock()
		empty := len(m.listenTarget) == 0
		var first int
		if !empty {
			first = m.listenTarget[0]
		}
		m.mu.Unlock()
		onExpire(first, empty)
	})
}

// CancelDeadline stops any pending deadline timer without replacing it.
func (m *Machine) CancelDeadline() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
