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

package journal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiblo/local-judger-go/internal/journal"
)

func TestNewSeedsJudgeStart(t *testing.T) {
	start := time.Now()
	j := journal.New(start)

	summary := j.AppendGameOver(start.Add(5*time.Second), 3, []int{1, 0})
	assert.Equal(t, journal.JudgeStart, summary.Events[0].Type)
	assert.Equal(t, -1, summary.Events[0].Round)
	assert.Equal(t, -1, summary.Events[0].AIID)
}

func TestMatchIDIsUniquePerJournal(t *testing.T) {
	start := time.Now()
	a := journal.New(start).AppendGameOver(start, 0, nil)
	b := journal.New(start).AppendGameOver(start, 0, nil)

	assert.NotEmpty(t, a.MatchID)
	assert.NotEqual(t, a.MatchID, b.MatchID)
}

func TestGameOverSummary(t *testing.T) {
	start := time.Now()
	j := journal.New(start)
	j.AppendAIConnected(start, 0)
	j.AppendAIConnected(start, 1)
	j.AppendLogicBooted(start)
	j.AppendNewRound(start, 0, 0)

	end := start.Add(2 * time.Second)
	summary := j.AppendGameOver(end, 0, []int{1, 0})

	assert.Equal(t, journal.StateGameOver, summary.FinalState)
	assert.Equal(t, []int{1, 0}, summary.FinalScore)
	assert.Equal(t, 0, summary.TotalRound)
	assert.Equal(t, 2*time.Second, summary.TotalTime)
}

func TestTotalRoundIgnoresControlEntries(t *testing.T) {
	start := time.Now()
	j := journal.New(start)
	j.AppendNewRound(start, 0, 0)
	j.AppendNewRound(start, 1, 0)
	j.AppendAIConnected(start, 0) // round defaults to -1, must not reset total_round

	summary := j.AppendGameOver(start, 1, []int{1})
	assert.Equal(t, 1, summary.TotalRound)
}

func TestAppendNewRoundRecordsElapsedTime(t *testing.T) {
	start := time.Now()
	j := journal.New(start)
	j.AppendNewRound(start, 1, 2500*time.Millisecond)

	summary := j.AppendGameOver(start, 1, []int{1})
	var newRound journal.Entry
	for _, e := range summary.Events {
		if e.Type == journal.NewRound {
			newRound = e
		}
	}
	assert.Equal(t, 2500*time.Millisecond, newRound.ElapsedTime)
}

func TestLogicCrashedHasNoScore(t *testing.T) {
	start := time.Now()
	j := journal.New(start)
	summary := j.AppendLogicCrashed(start, 4, "exit status 139")

	assert.Equal(t, journal.StateLogicCrashed, summary.FinalState)
	assert.Empty(t, summary.FinalScore)
}

func TestInternalErrorSummary(t *testing.T) {
	start := time.Now()
	j := journal.New(start)
	summary := j.AppendInternalError(start, -1, "SIGTERM received")

	assert.Equal(t, journal.StateInternalError, summary.FinalState)
	lastEvent := summary.Events[len(summary.Events)-1]
	assert.Equal(t, journal.InternalError, lastEvent.Type)
	assert.Equal(t, "SIGTERM received", lastEvent.Comment)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "AI_OLE", journal.AIOLE.String())
	assert.Equal(t, "GAME_OVER", journal.GameOver.String())
}
