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

package roundstate_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiblo/local-judger-go/internal/roundstate"
)

func TestDefaults(t *testing.T) {
	m := roundstate.New()
	assert.Equal(t, -1, m.State())
	assert.Equal(t, 2048, m.OutputLimit())
	assert.Equal(t, 3*time.Second, m.RoundTimeLimit())
}

func TestApplyRoundInfoTransitionsAndSetsListenSet(t *testing.T) {
	m := roundstate.New()
	now := time.Now()

	changed, elapsed := m.ApplyRoundInfo(now, 1, []int{0})
	assert.True(t, changed)
	assert.Equal(t, time.Duration(0), elapsed, "elapsed is 0 when leaving pre_game")
	assert.Equal(t, 1, m.State())
	assert.True(t, m.Listening(0))
	assert.False(t, m.Listening(1))
}

func TestApplyRoundInfoSameStateNoChange(t *testing.T) {
	m := roundstate.New()
	now := time.Now()

	m.ApplyRoundInfo(now, 1, []int{0})
	changed, elapsed := m.ApplyRoundInfo(now.Add(time.Second), 1, []int{0, 1})
	assert.False(t, changed, "same state must not count as a transition")
	assert.Equal(t, time.Duration(0), elapsed, "no elapsed is reported when the state doesn't change")
	assert.True(t, m.Listening(1), "listen set still replaces even without a state transition")
}

func TestApplyRoundInfoReportsElapsedOfOutgoingRound(t *testing.T) {
	m := roundstate.New()
	now := time.Now()

	m.ApplyRoundInfo(now, 1, []int{0})
	_, elapsed := m.ApplyRoundInfo(now.Add(2500*time.Millisecond), 2, []int{0})
	assert.Equal(t, 2500*time.Millisecond, elapsed, "elapsed is the time spent in the just-ended round")
}

func TestApplyRoundConfigUpdatesTimeLimit(t *testing.T) {
	m := roundstate.New()
	m.ApplyRoundConfig(time.Now(), 2, 5*time.Second)
	assert.Equal(t, 5*time.Second, m.RoundTimeLimit())
	assert.Equal(t, 2, m.State())
}

func TestArmDeadlineFiresWithFirstListenTarget(t *testing.T) {
	m := roundstate.New()
	m.ApplyRoundConfig(time.Now(), 1, 20*time.Millisecond)
	m.ApplyRoundInfo(time.Now(), 1, []int{5, 6})

	var mu sync.Mutex
	var gotFirst int
	var gotEmpty bool
	done := make(chan struct{})

	m.ArmDeadline(func(first int, empty bool) {
		mu.Lock()
		gotFirst, gotEmpty = first, empty
		mu.Unlock()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, gotFirst)
	assert.False(t, gotEmpty)
}

func TestArmDeadlineCancelBeforeReplace(t *testing.T) {
	m := roundstate.New()
	m.ApplyRoundConfig(time.Now(), 1, 30*time.Millisecond)

	fired := make(chan struct{}, 2)
	m.ArmDeadline(func(int, bool) { fired <- struct{}{} })
	m.ArmDeadline(func(int, bool) { fired <- struct{}{} })

	require.Eventually(t, func() bool { return len(fired) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fired, 1, "replacing the timer must cancel the previous one")
}

func TestCancelDeadlinePreventsFire(t *testing.T) {
	m := roundstate.New()
	m.ApplyRoundConfig(time.Now(), 1, 20*time.Millisecond)

	fired := make(chan struct{}, 1)
	m.ArmDeadline(func(int, bool) { fired <- struct{}{} })
	m.CancelDeadline()

	select {
	case <-fired:
		t.Fatal("deadline fired after cancellation")
	case <-time.After(100 * time.Millisecond):
	}
}
