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

// Package journal keeps the append-only event record of a match and
// finalizes it into a summary on terminal transition.
package journal

import (
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of journal entry.
type EventType int

const (
	JudgeStart EventType = iota
	AIConnected
	LogicBooted
	NewRound
	AIRE
	AITLE
	AIOLE
	LogicCrashed
	GameOver
	InternalError
)

func (t EventType) String() string {
	switch t {
	case JudgeStart:
		return "JUDGE_START"
	case AIConnected:
		return "AI_CONNECTED"
	case LogicBooted:
		return "LOGIC_BOOTED"
	case NewRound:
		return "NEW_ROUND"
	case AIRE:
		return "AI_RE"
	case AITLE:
		return "AI_TLE"
	case AIOLE:
		return "AI_OLE"
	case LogicCrashed:
		return "LOGIC_CRASHED"
	case GameOver:
		return "GAME_OVER"
	case InternalError:
		return "INTERNAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// FinalState is the terminal classification of a match.
type FinalState int

const (
	// NotFinished marks a summary that has not yet reached a terminal
	// transition; Finalize has not been called.
	NotFinished FinalState = iota
	StateGameOver
	StateLogicCrashed
	StateInternalError
)

func (s FinalState) String() string {
	switch s {
	case StateGameOver:
		return "GAME_OVER"
	case StateLogicCrashed:
		return "LOGIC_CRASHED"
	case StateInternalError:
		return "INTERNAL_ERROR"
	default:
		return "NOT_FINISHED"
	}
}

// Entry is one append-only journal record. Absent fields take fixed
// defaults: round/ai_id are -1, elapsed_time is 0, comment is "".
type Entry struct {
	Type        EventType
	Wallclock   time.Time
	Round       int
	AIID        int
	ElapsedTime time.Duration
	Comment     string
}

// Summary is the finalized record of a completed match.
type Summary struct {
	MatchID    string
	StartTime  time.Time
	TotalTime  time.Duration
	FinalState FinalState
	FinalScore []int
	TotalRound int
	Events     []Entry
}

// Journal accumulates entries for a single match. It is not safe for
// concurrent use on its own: every call site in internal/coordinator
// holds the coordinator's mutex around its Journal calls, which is what
// actually serializes appends and keeps entry order consistent. A caller
// that persists the journal after Finalize must treat Events as a
// snapshot, not a stream.
type Journal struct {
	matchID   string
	startTime time.Time
	entries   []Entry
}

// New starts a journal seeded with a JUDGE_START entry. Each journal gets
// a unique match ID, carried on its Summary, so a summary (and the
// judger.log line that reports it) can be told apart from another run's
// even when output directories get reused.
func New(now time.Time) *Journal {
	j := &Journal{startTime: now, matchID: uuid.NewString()}
	j.append(Entry{Type: JudgeStart, Wallclock: now, Round: -1, AIID: -1})
	return j
}

func (j *Journal) append(e Entry) {
	j.entries = append(j.entries, e)
}

// AppendAIConnected records an AI attaching to the judger.
func (j *Journal) AppendAIConnected(now time.Time, aiID int) {
	j.append(Entry{Type: AIConnected, Wallclock: now, Round: -1, AIID: aiID})
}

// AppendLogicBooted records the logic subprocess starting.
func (j *Journal) AppendLogicBooted(now time.Time) {
	j.append(Entry{Type: LogicBooted, Wallclock: now, Round: -1, AIID: -1})
}

// AppendNewRound records a round-state transition, tagged with the time
// spent in the outgoing round.
func (j *Journal) AppendNewRound(now time.Time, round int, elapsed time.Duration) {
	j.append(Entry{Type: NewRound, Wallclock: now, Round: round, AIID: -1, ElapsedTime: elapsed})
}

// AppendAIRE records a run/disconnect error attributed to an AI.
func (j *Journal) AppendAIRE(now time.Time, round, aiID int, comment string) {
	j.append(Entry{Type: AIRE, Wallclock: now, Round: round, AIID: aiID, Comment: comment})
}

// AppendAITLE records a time-limit violation attributed to an AI.
func (j *Journal) AppendAITLE(now time.Time, round, aiID int, elapsed time.Duration) {
	j.append(Entry{Type: AITLE, Wallclock: now, Round: round, AIID: aiID, ElapsedTime: elapsed})
}

// AppendAIOLE records an output-limit violation attributed to an AI.
func (j *Journal) AppendAIOLE(now time.Time, round, aiID int, comment string) {
	j.append(Entry{Type: AIOLE, Wallclock: now, Round: round, AIID: aiID, Comment: comment})
}

// AppendLogicCrashed records the logic process exiting abnormally and
// finalizes the summary.
func (j *Journal) AppendLogicCrashed(now time.Time, round int, comment string) Summary {
	j.append(Entry{Type: LogicCrashed, Wallclock: now, Round: round, AIID: -1, Comment: comment})
	return j.finalize(now, StateLogicCrashed, nil)
}

// AppendGameOver records a clean match conclusion with final scores and
// finalizes the summary.
func (j *Journal) AppendGameOver(now time.Time, round int, scores []int) Summary {
	j.append(Entry{Type: GameOver, Wallclock: now, Round: round, AIID: -1})
	return j.finalize(now, StateGameOver, scores)
}

// AppendInternalError records an unrecoverable judger-side failure and
// finalizes the summary.
func (j *Journal) AppendInternalError(now time.Time, round int, comment string) Summary {
	j.append(Entry{Type: InternalError, Wallclock: now, Round: round, AIID: -1, Comment: comment})
	return j.finalize(now, StateInternalError, nil)
}

// finalize computes total_time and total_round: total_round is the round
// index of the last entry with a non-(-1) round.
func (j *Journal) finalize(now time.Time, state FinalState, scores []int) Summary {
	totalRound := -1
	for _, e := range j.entries {
		if e.Round != -1 {
			totalRound = e.Round
		}
	}

	events := make([]Entry, len(j.entries))
	copy(events, j.entries)

	return Summary{
		MatchID:    j.matchID,
		StartTime:  j.startTime,
		TotalTime:  now.Sub(j.startTime),
		FinalState: state,
		FinalScore: scores,
		TotalRound: totalRound,
		Events:     events,
	}
}
